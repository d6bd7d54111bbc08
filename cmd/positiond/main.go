// Package main is a command-line demonstration of the positioning engine:
// it reads a JSON document describing known access points and one scan's
// observations, runs context classification, algorithm selection and
// fusion, and prints the resulting position estimate.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/wifiloc/pipeline/config"
	"github.com/wifiloc/pipeline/metrics"
	"github.com/wifiloc/pipeline/positioning"
	"github.com/wifiloc/pipeline/positioning/algorithms"
)

// inputDocument is the demo CLI's wire format: a snapshot of known APs plus
// the scan observations to localize against.
type inputDocument struct {
	AccessPoints []positioning.APRecord       `json:"accessPoints"`
	Scan         []positioning.ScanObservation `json:"scan"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	inputPath := flag.String("input", "", "path to a JSON input document (defaults to stdin)")
	flag.Parse()

	var r io.Reader = os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var doc inputDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	bootstrapLogger := zerolog.New(os.Stderr)
	cfg, err := config.Load(&bootstrapLogger)
	if err != nil {
		// The positioning thresholds have defaults that work without a
		// queue/region configured; fall back to them rather than fail the
		// demo CLI on unrelated ingestion-side required fields.
		cfg = &config.Config{Positioning: defaultPositioningConfig()}
	}

	store := positioning.NewSnapshotAPStore(doc.AccessPoints)
	classifier := positioning.NewClassifier(cfg.Positioning)
	selector := positioning.NewSelector(positioning.DefaultRegistry())

	centroid := algorithms.Centroid{KnownAPCount: len(doc.AccessPoints)}
	algos := map[string]positioning.AlgorithmRunner{
		"proximity":          algorithms.Proximity{},
		"rssi_ratio":         algorithms.RSSIRatio{PathLossCoeff: cfg.Positioning.PathLossCoeff},
		"weighted_centroid":  centroid,
		"trilateration":      algorithms.Trilateration{PathLossCoeff: cfg.Positioning.PathLossCoeff},
		"maximum_likelihood": algorithms.MaximumLikelihood{Centroid: centroid},
	}

	m := metrics.New(prometheus.NewRegistry())
	engine := positioning.NewEngine(store, classifier, selector, algos, positioning.NewFuser(), m)

	pos, ok := engine.Estimate(doc.Scan)
	if !ok {
		return fmt.Errorf("no position estimate: insufficient matched access points")
	}

	return json.NewEncoder(os.Stdout).Encode(pos)
}

// defaultPositioningConfig mirrors config.Positioning's env defaults, used
// when no environment-backed config is available.
func defaultPositioningConfig() config.Positioning {
	return config.Positioning{
		RSSIStrong:          -70,
		RSSIMedium:          -85,
		RSSIWeak:            -95,
		GDOPExcellent:       2.0,
		GDOPGood:            4.0,
		GDOPFair:            6.0,
		PathLossCoeff:       20,
		CollinearityEpsilon: 0.02,
	}
}
