package model

import (
	"fmt"
	"math"
)

// Scorer runs one forward pass and returns the per-class scores.
type Scorer interface {
	Scores(input []float32) ([]float32, error)
}

// Classifier maps scorer output onto the label vocabulary. It is immutable
// after construction and safe to share between requests when the scorer is.
type Classifier struct {
	scorer Scorer
	labels []string
}

func NewClassifier(scorer Scorer, labels []string) (*Classifier, error) {
	if scorer == nil {
		return nil, fmt.Errorf("classifier requires a scorer")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("classifier requires at least one label")
	}
	owned := make([]string, len(labels))
	copy(owned, labels)
	return &Classifier{scorer: scorer, labels: owned}, nil
}

// Labels returns a copy of the label vocabulary.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Classifier) Predict(input []float32) (Prediction, error) {
	scores, err := c.scorer.Scores(input)
	if err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}
	if len(scores) != len(c.labels) {
		return Prediction{}, fmt.Errorf("model returned %d scores for %d labels", len(scores), len(c.labels))
	}

	for i, v := range scores {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Prediction{}, fmt.Errorf("model returned non-finite score %v for %s", v, c.labels[i])
		}
	}

	idx := ArgMax(scores)
	return Prediction{
		Label:      c.labels[idx],
		Confidence: scores[idx],
	}, nil
}

// ArgMax returns the index of the largest value; the first one wins on ties.
// It returns -1 for an empty slice.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := values[0]
	for i, val := range values {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}
