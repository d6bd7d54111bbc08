package positioning

import "github.com/wifiloc/pipeline/metrics"

// AlgorithmRunner is satisfied by positioning/algorithms.Algorithm; kept
// local to avoid an import cycle (algorithms imports positioning for its
// shared types).
type AlgorithmRunner interface {
	Name() string
	Estimate(matched []MatchedAP) (Position, bool)
}

// Engine wires ContextClassifier, Selector, the algorithm set, and Fuser
// into the single entry point cmd/positiond uses.
type Engine struct {
	store      APStore
	classifier *Classifier
	selector   *Selector
	algorithms map[string]AlgorithmRunner
	fuser      *Fuser
	metrics    *metrics.Metrics
}

// NewEngine constructs an Engine. algorithms must contain an entry for
// every name present in the selector's registry; algorithms absent from
// this map are silently skipped (treated as if selected with zero
// weight), so callers should pass all five.
func NewEngine(store APStore, classifier *Classifier, selector *Selector, algos map[string]AlgorithmRunner, fuser *Fuser, m *metrics.Metrics) *Engine {
	return &Engine{
		store:      store,
		classifier: classifier,
		selector:   selector,
		algorithms: algos,
		fuser:      fuser,
		metrics:    m,
	}
}

// Estimate runs the full classify -> select -> run -> fuse pipeline for
// one scan and returns the fused position, or false if no algorithm had
// non-zero weight or none of the selected algorithms could produce an
// estimate.
func (e *Engine) Estimate(scans []ScanObservation) (Position, bool) {
	matched := Match(scans, e.store)
	factors := e.classifier.Classify(matched)
	weights := e.selector.Select(factors)

	if len(weights) == 0 {
		return Position{}, false
	}

	var candidates []Candidate
	for _, w := range weights {
		algo, ok := e.algorithms[w.Name]
		if !ok {
			e.metrics.IncAlgorithmDisabled(w.Name, "unregistered")
			continue
		}
		pos, ok := algo.Estimate(matched)
		if !ok {
			e.metrics.IncAlgorithmDisabled(w.Name, "estimate_failed")
			continue
		}
		e.metrics.IncAlgorithmSelected(w.Name)
		candidates = append(candidates, Candidate{Name: w.Name, Weight: w.Normalized, Position: pos})
	}

	return e.fuser.Fuse(candidates)
}
