package anomaly

import (
	"math"

	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/shopspring/decimal"
)

// MinBaselinePoints is the minimum number of sealed baseline windows required
// to score a deviation. Below this the detector returns nil — insufficient
// history is a null result, not an error.
const MinBaselinePoints = 2

// ZeroVarianceScore is the sign-carrying sentinel used when the baseline is
// constant (sample stddev = 0) and the observed value differs from it. Large
// and finite so it survives JSON serialization; treated as "infinitely many
// sigmas" by consumers.
const ZeroVarianceScore = 1e9

// DefaultThreshold flags deviations of two standard deviations or more.
const DefaultThreshold = 2.0

// Kind classifies the direction of a flagged deviation.
type Kind string

const (
	KindSpike Kind = "SPIKE"
	KindDrop  Kind = "DROP"
)

// Flag is a statistically significant deviation of an observed metric from
// its baseline. Derived per query, never persisted.
type Flag struct {
	ProductID     string               `json:"product_id"`
	WindowID      aggregation.WindowID `json:"window_id"`
	ObservedValue decimal.Decimal      `json:"observed_value"`
	BaselineValue decimal.Decimal      `json:"baseline_value"` // baseline mean
	Score         float64              `json:"deviation_score"`
	Kind          Kind                 `json:"kind"`
}

// Detector scores observed values against per-product baselines.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector flagging |score| >= threshold.
// Non-positive thresholds fall back to DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Threshold returns the configured flagging threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect scores observed against the baseline values (most recent first, as
// returned by the aggregator's Baseline) and returns a Flag when the score
// crosses the threshold in either direction. Returns nil when history is too
// short or the deviation stays strictly inside (-T, T).
//
// Score = (observed - mean) / sample stddev. A constant baseline yields a flag
// only when observed differs from it, with Score = ±ZeroVarianceScore.
func (d *Detector) Detect(productID string, windowID aggregation.WindowID, observed decimal.Decimal, baseline []decimal.Decimal) *Flag {
	if len(baseline) < MinBaselinePoints {
		return nil
	}

	mean := meanOf(baseline)
	sigma := sampleStddev(baseline, mean)
	obs := observed.InexactFloat64()
	mu := mean.InexactFloat64()

	var score float64
	switch {
	case sigma > 0:
		score = (obs - mu) / sigma
	case observed.Equal(mean):
		return nil
	case obs > mu:
		score = ZeroVarianceScore
	default:
		score = -ZeroVarianceScore
	}

	var kind Kind
	switch {
	case score >= d.threshold:
		kind = KindSpike
	case score <= -d.threshold:
		kind = KindDrop
	default:
		return nil
	}

	return &Flag{
		ProductID:     productID,
		WindowID:      windowID,
		ObservedValue: observed,
		BaselineValue: mean,
		Score:         score,
		Kind:          kind,
	}
}

func meanOf(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// sampleStddev uses the n-1 divisor. Float math is fine here: scores feed a
// threshold comparison, not money arithmetic.
func sampleStddev(values []decimal.Decimal, mean decimal.Decimal) float64 {
	mu := mean.InexactFloat64()
	var m2 float64
	for _, v := range values {
		d := v.InexactFloat64() - mu
		m2 += d * d
	}
	return math.Sqrt(m2 / float64(len(values)-1))
}
