package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	firehosesvc "github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/wifiloc/pipeline/batch"
	"github.com/wifiloc/pipeline/metrics"
)

type mockFirehoseClient struct {
	mu    sync.Mutex
	calls [][]types.Record
	// respond returns the output (or error) for the Nth call (0-indexed).
	respond func(call int, records []types.Record) (*firehosesvc.PutRecordBatchOutput, error)
}

func (m *mockFirehoseClient) PutRecordBatch(ctx context.Context, params *firehosesvc.PutRecordBatchInput, optFns ...func(*firehosesvc.Options)) (*firehosesvc.PutRecordBatchOutput, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, params.Records)
	m.mu.Unlock()
	return m.respond(call, params.Records)
}

func strp(s string) *string { return &s }
func i32p(n int32) *int32   { return &n }

func TestPartialFailureResubmitsOnlyFailedRecords(t *testing.T) {
	client := &mockFirehoseClient{
		respond: func(call int, records []types.Record) (*firehosesvc.PutRecordBatchOutput, error) {
			if call == 0 {
				responses := make([]types.PutRecordBatchResponseEntry, len(records))
				for i := range responses {
					if i < 3 {
						responses[i] = types.PutRecordBatchResponseEntry{ErrorCode: strp("ServiceUnavailableException")}
					} else {
						responses[i] = types.PutRecordBatchResponseEntry{RecordId: strp("ok")}
					}
				}
				return &firehosesvc.PutRecordBatchOutput{FailedPutCount: i32p(3), RequestResponses: responses}, nil
			}
			// Resubmission call: all succeed.
			responses := make([]types.PutRecordBatchResponseEntry, len(records))
			for i := range responses {
				responses[i] = types.PutRecordBatchResponseEntry{RecordId: strp("ok")}
			}
			return &firehosesvc.PutRecordBatchOutput{FailedPutCount: i32p(0), RequestResponses: responses}, nil
		},
	}

	var terminalLost, terminalOK int
	var mu sync.Mutex
	onTerminal := func(owner string, lost bool) {
		mu.Lock()
		defer mu.Unlock()
		if owner == "" {
			t.Errorf("expected a non-empty owner on every terminal callback")
		}
		if lost {
			terminalLost++
		} else {
			terminalOK++
		}
	}

	m := metrics.New(prometheus.NewRegistry())
	sink := New(client, "stream", 5, 10*time.Millisecond, m, zerolog.Nop(), onTerminal)

	records := make([][]byte, 10)
	owners := make([]string, 10)
	for i := range records {
		records[i] = []byte("record")
		owners[i] = "msg-1"
	}
	b := batch.Batch{Records: records, Owners: owners, CorrelationID: "corr-1"}

	start := time.Now()
	if err := sink.WriteBatch(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < partialFailureDelay {
		t.Fatalf("expected resubmission delay of at least %v, got %v", partialFailureDelay, elapsed)
	}

	if len(client.calls) != 2 {
		t.Fatalf("expected 2 calls (initial + resubmit), got %d", len(client.calls))
	}
	if len(client.calls[1]) != 3 {
		t.Fatalf("expected exactly 3 resubmitted records, got %d", len(client.calls[1]))
	}

	mu.Lock()
	defer mu.Unlock()
	if terminalOK != 10 {
		t.Fatalf("expected all 10 records to terminate successfully eventually, got %d", terminalOK)
	}
	if terminalLost != 0 {
		t.Fatalf("expected no loss, got %d", terminalLost)
	}
}

func TestPermanentErrorDiscardsWithoutRetry(t *testing.T) {
	client := &mockFirehoseClient{
		respond: func(call int, records []types.Record) (*firehosesvc.PutRecordBatchOutput, error) {
			return nil, &types.ResourceNotFoundException{Message: strp("no such stream")}
		},
	}

	var lost int
	onTerminal := func(owner string, isLost bool) {
		if isLost {
			lost++
		}
	}

	m := metrics.New(prometheus.NewRegistry())
	sink := New(client, "stream", 5, time.Millisecond, m, zerolog.Nop(), onTerminal)

	b := batch.Batch{Records: [][]byte{[]byte("r1")}, Owners: []string{"msg-2"}, CorrelationID: "corr-2"}
	if err := sink.WriteBatch(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("expected exactly 1 call for a permanent error, got %d", len(client.calls))
	}
	if lost != 1 {
		t.Fatalf("expected 1 lost record, got %d", lost)
	}
}

func TestJitteredDelayWithinBand(t *testing.T) {
	base := 500 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		d := jitteredDelay(base, attempt)
		expected := base
		for i := 0; i < attempt; i++ {
			expected *= 2
			if expected > 30*time.Second {
				expected = 30 * time.Second
				break
			}
		}
		lower := time.Duration(float64(expected) * 0.75)
		upper := time.Duration(float64(expected) * 1.25)
		if d < lower || d > upper {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lower, upper)
		}
	}
}
