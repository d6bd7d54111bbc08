// Package router implements StreamRouter / FeedProcessorFactory: an
// ordered list of feed-specific processors plus a default, selecting the
// first whose canProcess(streamName) matches a given UploadEvent.
package router

// FeedProcessor is a stateless, thread-safe per-feed processing policy.
// Implementations decide whether they handle a stream and how the
// transform stage should treat its records.
type FeedProcessor interface {
	// CanProcess reports whether this processor handles streamName.
	CanProcess(streamName string) bool
	// Name identifies the processor for logging and metrics.
	Name() string
	// RequireObservations rejects a measurement outright if it has zero AP
	// observations, before it ever reaches the transform stage's sanity
	// filter; the default processor allows empty-observation records
	// through to stage-1 filtering instead.
	RequireObservations() bool
}

// DefaultFeedProcessor accepts any stream name and defers all filtering to
// RecordTransformer's stage-1 sanity filter.
type DefaultFeedProcessor struct{}

// CanProcess always returns true; DefaultFeedProcessor is the fallback.
func (DefaultFeedProcessor) CanProcess(string) bool { return true }

// Name returns the processor's identifier.
func (DefaultFeedProcessor) Name() string { return "default" }

// RequireObservations returns false: empty scans are handled by stage-1
// filtering, not rejected upfront.
func (DefaultFeedProcessor) RequireObservations() bool { return false }

// StrictFeedProcessor handles the "strict" stream name. Its
// RequireObservations makes transform.Transformer reject scans with zero AP
// observations, ahead of the sanity filter.
type StrictFeedProcessor struct{}

// CanProcess matches only the "strict" stream.
func (StrictFeedProcessor) CanProcess(streamName string) bool { return streamName == "strict" }

// Name returns the processor's identifier.
func (StrictFeedProcessor) Name() string { return "strict" }

// RequireObservations returns true: zero-observation scans are rejected
// upfront for this stream.
func (StrictFeedProcessor) RequireObservations() bool { return true }

// Router holds a priority-ordered list of processors and a default.
type Router struct {
	processors []FeedProcessor
	fallback   FeedProcessor
}

// New constructs a Router. processors are tried in order; fallback is used
// if none match.
func New(fallback FeedProcessor, processors ...FeedProcessor) *Router {
	return &Router{processors: processors, fallback: fallback}
}

// ProcessorFor selects the first processor whose CanProcess matches
// streamName, else the fallback.
func (r *Router) ProcessorFor(streamName string) FeedProcessor {
	for _, p := range r.processors {
		if p.CanProcess(streamName) {
			return p
		}
	}
	return r.fallback
}
