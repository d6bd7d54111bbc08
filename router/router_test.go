package router

import "testing"

func TestRouterPicksStrictByPriority(t *testing.T) {
	r := New(DefaultFeedProcessor{}, StrictFeedProcessor{})

	if got := r.ProcessorFor("strict").Name(); got != "strict" {
		t.Fatalf("expected strict, got %q", got)
	}
	if got := r.ProcessorFor("other").Name(); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}
}

func TestRequireObservationsDiffers(t *testing.T) {
	if (DefaultFeedProcessor{}).RequireObservations() {
		t.Fatal("default processor should not require observations")
	}
	if !(StrictFeedProcessor{}.RequireObservations()) {
		t.Fatal("strict processor should require observations")
	}
}
