package service

import (
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/pkg/gli"
)

// Confidence scoring constants. Only Mild and Moderate severities carry a
// penalty and only the ratio and FVC z-scores are checked for boundary
// proximity; the asymmetry matches the reviewed scoring rules, keep it.
const (
	baseConfidence          = 100
	mixedPatternPenalty     = 20
	mildSeverityPenalty     = 25
	moderateSeverityPenalty = 10
	borderlinePenalty       = 15
	borderlineMargin        = 0.3

	minConfidence = 50
	maxConfidence = 99
)

// Bronchodilator response thresholds. Both must be exceeded strictly on
// the same measurement for a significant response.
const (
	reversibilityMinPercent = 12.0
	reversibilityMinLiters  = 0.2
)

// severityBand is one row of a grading table. MinPercent is an inclusive
// lower bound on percent of predicted.
type severityBand struct {
	MinPercent float64
	Grade      domain.Severity
}

// severityTables maps each abnormal pattern to its grading bands, ordered
// best to worst. Percent values below the last band grade as SEVERE.
// Mixed has no MILD band.
var severityTables = map[domain.Pattern][]severityBand{
	domain.OBSTRUCTIVE: {
		{MinPercent: 80, Grade: domain.MILD},
		{MinPercent: 50, Grade: domain.MODERATE},
		{MinPercent: 30, Grade: domain.MODERATELY_SEVERE},
	},
	domain.RESTRICTIVE: {
		{MinPercent: 70, Grade: domain.MILD},
		{MinPercent: 60, Grade: domain.MODERATE},
		{MinPercent: 50, Grade: domain.MODERATELY_SEVERE},
	},
	domain.MIXED: {
		{MinPercent: 60, Grade: domain.MODERATE},
		{MinPercent: 40, Grade: domain.MODERATELY_SEVERE},
	},
}

// RuleEngine applies the fixed classification, grading and scoring rules
// to computed statistics. All tables are read-only, a single engine is
// safe for concurrent use.
type RuleEngine struct {
	logger *logrus.Logger
}

// NewRuleEngine creates a new rule engine.
func NewRuleEngine(logger *logrus.Logger) *RuleEngine {
	return &RuleEngine{logger: logger}
}

// ClassifyPattern determines the ventilatory pattern from a z-score set.
// First match wins: Mixed requires all three scores below the lower limit
// of normal, Restrictive requires the ratio at or above it.
func (e *RuleEngine) ClassifyPattern(z domain.ZScoreSet) domain.Pattern {
	ratioLow := gli.BelowLLN(z.Ratio)
	fvcLow := gli.BelowLLN(z.FVC)
	fev1Low := gli.BelowLLN(z.FEV1)

	var pattern domain.Pattern
	switch {
	case ratioLow && fvcLow && fev1Low:
		pattern = domain.MIXED
	case ratioLow:
		pattern = domain.OBSTRUCTIVE
	case fvcLow:
		pattern = domain.RESTRICTIVE
	default:
		pattern = domain.NORMAL
	}

	e.logger.WithFields(logrus.Fields{
		"fev1_z":  z.FEV1,
		"fvc_z":   z.FVC,
		"ratio_z": z.Ratio,
		"pattern": pattern.String(),
	}).Debug("Pattern classified")

	return pattern
}

// GradeSeverity grades a percent of predicted value under the semantics
// of the given pattern. A Normal pattern always grades Normal.
func (e *RuleEngine) GradeSeverity(percentPredicted float64, pattern domain.Pattern) domain.Severity {
	if pattern == domain.NORMAL {
		return domain.NORMAL_SEVERITY
	}

	for _, band := range severityTables[pattern] {
		if percentPredicted >= band.MinPercent {
			return band.Grade
		}
	}
	return domain.SEVERE
}

// AssessReversibility evaluates the bronchodilator response between the
// pre and post test phases. Either measurement qualifying on its own
// makes the response significant.
func (e *RuleEngine) AssessReversibility(pre, post domain.TestPhaseResult) domain.Reversibility {
	fev1Change := post.FEV1.Liters - pre.FEV1.Liters
	fvcChange := post.FVC.Liters - pre.FVC.Liters
	fev1Percent := fev1Change / pre.FEV1.Liters * 100
	fvcPercent := fvcChange / pre.FVC.Liters * 100

	fev1Significant := fev1Percent > reversibilityMinPercent && fev1Change > reversibilityMinLiters
	fvcSignificant := fvcPercent > reversibilityMinPercent && fvcChange > reversibilityMinLiters

	return domain.Reversibility{
		Significant:       fev1Significant || fvcSignificant,
		FEV1ChangePercent: fev1Percent,
		FEV1ChangeLiters:  fev1Change,
		FVCChangePercent:  fvcPercent,
		FVCChangeLiters:   fvcChange,
	}
}

// ScoreConfidence computes the integer confidence score for a classified
// record, clamped to [50, 99]. The boundary proximity penalty applies at
// most once even when both checked z-scores sit near the limit.
func (e *RuleEngine) ScoreConfidence(pattern domain.Pattern, severity domain.Severity, z domain.ZScoreSet) int {
	score := baseConfidence

	if pattern == domain.MIXED {
		score -= mixedPatternPenalty
	}

	switch severity {
	case domain.MILD:
		score -= mildSeverityPenalty
	case domain.MODERATE:
		score -= moderateSeverityPenalty
	}

	for _, zv := range []float64{z.Ratio, z.FVC} {
		if gli.NearLLN(zv, borderlineMargin) {
			score -= borderlinePenalty
			break
		}
	}

	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
