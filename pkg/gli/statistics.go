package gli

import (
	"math"

	"github.com/pft-interp-server/internal/domain"
)

// LLN is the lower limit of normal expressed as a z-score, the fixed 5th
// percentile cutoff of the reference population. The pattern classifier
// and the percentile approximation below move together, never retune one
// without the other.
const LLN = -1.645

// RatioSD is the fixed standard deviation applied to FEV1/FVC ratio
// z-scores.
const RatioSD = 0.07

var baseCV = map[Param]float64{
	FEV1: 0.12,
	FVC:  0.11,
}

// CV returns the coefficient of variation for a parameter adjusted by age
// band. Variability widens below age 20 and above age 60.
func CV(param Param, age int) float64 {
	cv := baseCV[param]
	switch {
	case age < 10:
		cv += 0.04
	case age < 20:
		cv += 0.02
	case age > 60:
		cv += 0.05
	}
	return cv
}

// ZScore expresses a measured volume as standard deviations from predicted,
// with the standard deviation modeled as predicted times CV.
func ZScore(measured, predicted, cv float64) float64 {
	return (measured - predicted) / (predicted * cv)
}

// RatioZScore expresses a measured FEV1/FVC ratio, given in percent,
// against the predicted ratio fraction.
func RatioZScore(measuredPercent, predictedRatio float64) float64 {
	return (measuredPercent/100 - predictedRatio) / RatioSD
}

// ZScores computes the z-score set for one test phase against predicted
// values.
func ZScores(phase domain.TestPhaseResult, predicted domain.PredictedValues, age int) domain.ZScoreSet {
	return domain.ZScoreSet{
		FEV1:  ZScore(phase.FEV1.Liters, predicted.FEV1, CV(FEV1, age)),
		FVC:   ZScore(phase.FVC.Liters, predicted.FVC, CV(FVC, age)),
		Ratio: RatioZScore(phase.FEV1FVCRatio.Value, predicted.Ratio),
	}
}

// Percentile maps a z-score to an approximate reference percentile. The
// quadratic is a coarse normal CDF approximation, exact at |z| = 1, and
// the result is clamped to [0.1, 99.9]. It is not a statistically exact
// CDF and is not meant to be.
func Percentile(z float64) float64 {
	if z < -3 {
		return 0.1
	}
	if z > 3 {
		return 99.9
	}

	var p float64
	switch {
	case math.Abs(z) <= 2:
		p = 50 + 34.13*z + 13.59*(z*z-1)
	case z > 0:
		p = 99.7
	default:
		p = 0.3
	}

	return math.Max(0.1, math.Min(99.9, p))
}

// Percentiles converts a z-score set to percentiles.
func Percentiles(z domain.ZScoreSet) domain.PercentileSet {
	return domain.PercentileSet{
		FEV1:  Percentile(z.FEV1),
		FVC:   Percentile(z.FVC),
		Ratio: Percentile(z.Ratio),
	}
}

// BelowLLN reports whether a z-score is below the lower limit of normal.
func BelowLLN(z float64) bool {
	return z < LLN
}

// NearLLN reports whether a z-score lies within margin of the lower limit
// of normal, exclusive on both sides.
func NearLLN(z, margin float64) bool {
	return z > LLN-margin && z < LLN+margin
}
