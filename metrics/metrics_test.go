package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHappyPath(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncRecordsAccepted()
	m.IncRecordsAccepted()
	m.IncParseFailures()
	m.IncSanityDrops()
	m.IncOUIExcluded()
	m.IncDeliveryRetries()
	m.IncDeliveryLoss(3)
	m.ObserveBatch(120)
	m.ObserveDelivery(50 * time.Millisecond)

	snap := m.Snapshot()
	if snap.RecordsAccepted != 2 {
		t.Errorf("expected 2 records accepted, got %d", snap.RecordsAccepted)
	}
	if snap.ParseFailures != 1 {
		t.Errorf("expected 1 parse failure, got %d", snap.ParseFailures)
	}
	if snap.SanityDrops != 1 {
		t.Errorf("expected 1 sanity drop, got %d", snap.SanityDrops)
	}
	if snap.OUIExcluded != 1 {
		t.Errorf("expected 1 oui exclusion, got %d", snap.OUIExcluded)
	}
	if snap.DeliveryRetries != 1 {
		t.Errorf("expected 1 delivery retry, got %d", snap.DeliveryRetries)
	}
	if snap.DeliveryLoss != 3 {
		t.Errorf("expected 3 lost records, got %d", snap.DeliveryLoss)
	}
	if snap.BatchesFlushed != 1 {
		t.Errorf("expected 1 batch flushed, got %d", snap.BatchesFlushed)
	}
	if got := testutil.ToFloat64(m.RecordsAccepted); got != 2 {
		t.Errorf("expected prometheus counter to read 2, got %v", got)
	}
}

func TestAlgorithmVectorsLabeled(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AlgorithmSelected.WithLabelValues("trilateration").Inc()
	m.AlgorithmDisabled.WithLabelValues("trilateration", "collinear").Inc()

	if got := testutil.ToFloat64(m.AlgorithmSelected.WithLabelValues("trilateration")); got != 1 {
		t.Errorf("expected 1 selection recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.AlgorithmDisabled.WithLabelValues("trilateration", "collinear")); got != 1 {
		t.Errorf("expected 1 disablement recorded, got %v", got)
	}
}
