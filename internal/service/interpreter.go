package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/pkg/gli"
)

// InterpreterService runs the full interpretation pipeline over validated
// test records. It is a pure computation, the same record always yields
// the same interpretation, and a single instance is safe for concurrent
// use.
type InterpreterService struct {
	logger     *logrus.Logger
	model      *gli.Model
	ruleEngine *RuleEngine
}

// NewInterpreterService creates a new interpreter service.
func NewInterpreterService(logger *logrus.Logger) *InterpreterService {
	return &InterpreterService{
		logger:     logger,
		model:      gli.NewModel(),
		ruleEngine: NewRuleEngine(logger),
	}
}

// RuleEngine exposes the underlying rule engine for callers that grade or
// classify outside the full pipeline.
func (s *InterpreterService) RuleEngine() *RuleEngine {
	return s.ruleEngine
}

// Interpret runs the interpretation pipeline on a validated record.
// Pattern, severity and statistics are computed from the
// pre-bronchodilator phase; the post phase only feeds the reversibility
// assessment.
func (s *InterpreterService) Interpret(record *domain.TestRecord) (*domain.Interpretation, error) {
	startTime := time.Now()
	pre := record.PFTResults.PreBronchodilator
	post := record.PFTResults.PostBronchodilator

	// Step 1: Predicted values from the reference model
	predicted, err := s.model.Predict(record.Demographics.Age, record.Demographics.HeightCM, record.Demographics.Sex)
	if err != nil {
		return nil, fmt.Errorf("failed to compute predicted values: %w", err)
	}

	// Step 2: Standardized statistics against predicted
	zScores := gli.ZScores(pre, predicted, record.Demographics.Age)

	// Step 3: Pattern classification
	pattern := s.ruleEngine.ClassifyPattern(zScores)

	// Step 4: Severity grading, overall plus per-measurement sub-scores
	severity := s.ruleEngine.GradeSeverity(pre.FEV1.PercentPredicted, pattern)
	fev1Severity := s.ruleEngine.GradeSeverity(pre.FEV1.PercentPredicted, domain.OBSTRUCTIVE)
	fvcSeverity := s.ruleEngine.GradeSeverity(pre.FVC.PercentPredicted, domain.RESTRICTIVE)

	// Step 5: Bronchodilator response
	reversibility := s.ruleEngine.AssessReversibility(pre, post)

	// Step 6: Percentiles and confidence
	percentiles := gli.Percentiles(zScores)
	confidence := s.ruleEngine.ScoreConfidence(pattern, severity, zScores)

	interpretation := &domain.Interpretation{
		Pattern:            pattern,
		Severity:           severity,
		FEV1Severity:       fev1Severity,
		FVCSeverity:        fvcSeverity,
		Reversibility:      reversibility,
		ZScores:            zScores,
		Percentiles:        percentiles,
		PredictedValues:    predicted,
		Confidence:         confidence,
		ClinicalImpression: ClinicalImpression(pattern, severity, reversibility.Significant),
		Recommendations:    Recommendations(pattern, severity, reversibility.Significant),
	}

	s.logger.WithFields(logrus.Fields{
		"pattern":         pattern.String(),
		"severity":        severity.String(),
		"reversible":      reversibility.Significant,
		"confidence":      confidence,
		"processing_time": time.Since(startTime),
	}).Info("Interpretation completed")

	return interpretation, nil
}
