package domain

import "errors"

var (
	// ErrInsufficientData: too few usable records to cluster.
	ErrInsufficientData = errors.New("insufficient data for clustering")
	// ErrNoViableClusters: every cluster fell below the minimum size.
	ErrNoViableClusters = errors.New("no viable clusters after curation")
	// ErrGenerationParse: model output could not be turned into items.
	ErrGenerationParse = errors.New("generation output unparseable")
	// ErrPartialBatch: a tier finished below its target count.
	ErrPartialBatch = errors.New("generation batch below target")
)
