// Package validation scores the interpretation engine against expert-labeled
// spirometry datasets. Expert impressions arrive as free text; they are
// reduced to pattern and severity labels by keyword matching and compared
// with the engine's output record by record.
package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
)

const maxMismatchDisplay = 5

// LabeledRecord is one dataset entry: a spirometry test record plus the
// expert's free-text impression. Records with an empty impression are
// interpreted but not scored.
type LabeledRecord struct {
	FileName   string `json:"file_name,omitempty"`
	Impression string `json:"impression,omitempty"`

	domain.TestRecord
}

// ExpertLabel is the structured reading of an expert impression. Zero values
// mean the text did not state that dimension.
type ExpertLabel struct {
	Pattern  domain.Pattern
	Severity domain.Severity
}

// Mismatch records one disagreement between engine and expert.
type Mismatch struct {
	Record     string `json:"record"`
	System     string `json:"system"`
	Expert     string `json:"expert"`
	ExpertText string `json:"expert_text"`
}

// Report carries the agreement metrics of one validation run. Accuracy
// denominators are the full dataset size, so unparseable or unlabeled
// records count against accuracy rather than silently shrinking the run.
type Report struct {
	TotalRecords     int        `json:"total_records"`
	Evaluated        int        `json:"evaluated"`
	PatternCorrect   int        `json:"pattern_correct"`
	SeverityCorrect  int        `json:"severity_correct"`
	BothCorrect      int        `json:"both_correct"`
	PatternAccuracy  float64    `json:"pattern_accuracy"`
	SeverityAccuracy float64    `json:"severity_accuracy"`
	OverallAccuracy  float64    `json:"overall_accuracy"`
	Mismatches       []Mismatch `json:"mismatches,omitempty"`
}

// Service runs expert-agreement validation against the interpretation engine.
type Service struct {
	logger      *logrus.Logger
	interpreter domain.Interpreter
}

// NewService creates a validation service.
func NewService(logger *logrus.Logger, interpreter domain.Interpreter) *Service {
	return &Service{
		logger:      logger,
		interpreter: interpreter,
	}
}

// ParseExpertImpression extracts pattern and severity labels from an expert's
// free-text impression. Keyword priority resolves compound wordings: "mixed"
// outranks the patterns it combines, and the two-word severity grades are
// matched before their single-word substrings. A normal study without an
// explicit severity implies normal severity.
func (s *Service) ParseExpertImpression(text string) ExpertLabel {
	lowered := strings.ToLower(text)

	var label ExpertLabel
	switch {
	case strings.Contains(lowered, "mixed"):
		label.Pattern = domain.MIXED
	case strings.Contains(lowered, "obstructive"):
		label.Pattern = domain.OBSTRUCTIVE
	case strings.Contains(lowered, "restrictive"):
		label.Pattern = domain.RESTRICTIVE
	case strings.Contains(lowered, "normal"), strings.Contains(lowered, "unremarkable"):
		label.Pattern = domain.NORMAL
	}

	switch {
	case strings.Contains(lowered, "moderately severe"):
		label.Severity = domain.MODERATELY_SEVERE
	case strings.Contains(lowered, "very severe"):
		label.Severity = domain.VERY_SEVERE
	case strings.Contains(lowered, "severe"):
		label.Severity = domain.SEVERE
	case strings.Contains(lowered, "moderate"):
		label.Severity = domain.MODERATE
	case strings.Contains(lowered, "mild"):
		label.Severity = domain.MILD
	case label.Pattern == domain.NORMAL:
		label.Severity = domain.NORMAL_SEVERITY
	}

	return label
}

// ValidateDataset runs the engine over every labeled record and scores
// agreement with the expert impressions.
func (s *Service) ValidateDataset(records []LabeledRecord) *Report {
	result := &Report{TotalRecords: len(records)}

	for i, labeled := range records {
		identifier := labeled.FileName
		if identifier == "" {
			identifier = fmt.Sprintf("Record #%d", i+1)
		}

		interp, err := s.interpreter.Interpret(&labeled.TestRecord)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"record": identifier,
				"error":  err,
			}).Warn("Validation record failed to interpret")
			continue
		}

		if labeled.Impression == "" {
			continue
		}
		result.Evaluated++

		expert := s.ParseExpertImpression(labeled.Impression)
		patternMatch := interp.Pattern == expert.Pattern
		severityMatch := interp.Severity == expert.Severity

		if patternMatch {
			result.PatternCorrect++
		}
		if severityMatch {
			result.SeverityCorrect++
		}
		if patternMatch && severityMatch {
			result.BothCorrect++
		} else {
			result.Mismatches = append(result.Mismatches, Mismatch{
				Record:     identifier,
				System:     fmt.Sprintf("Pattern: %s, Severity: %s", interp.Pattern, interp.Severity),
				Expert:     fmt.Sprintf("Pattern: %s, Severity: %s", orNA(string(expert.Pattern)), orNA(string(expert.Severity))),
				ExpertText: labeled.Impression,
			})
		}
	}

	if result.TotalRecords > 0 {
		total := float64(result.TotalRecords)
		result.PatternAccuracy = float64(result.PatternCorrect) / total * 100
		result.SeverityAccuracy = float64(result.SeverityCorrect) / total * 100
		result.OverallAccuracy = float64(result.BothCorrect) / total * 100
	}

	s.logger.WithFields(logrus.Fields{
		"total":            result.TotalRecords,
		"evaluated":        result.Evaluated,
		"pattern_correct":  result.PatternCorrect,
		"severity_correct": result.SeverityCorrect,
		"both_correct":     result.BothCorrect,
	}).Info("Expert validation completed")

	return result
}

// LoadDataset decodes a labeled dataset: a JSON array of records, each
// carrying the spirometry payload plus the expert impression.
func LoadDataset(r io.Reader) ([]LabeledRecord, error) {
	var records []LabeledRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode labeled dataset: %w", err)
	}
	return records, nil
}

// Render formats the report for terminal output, listing at most five
// mismatches for review.
func (r *Report) Render() string {
	banner := strings.Repeat("=", 50)

	var b strings.Builder
	fmt.Fprintln(&b, banner)
	fmt.Fprintln(&b, "      PFT SYSTEM VALIDATION REPORT")
	fmt.Fprintln(&b, banner)
	fmt.Fprintf(&b, "Total Records Processed: %d\n", r.TotalRecords)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "--- ACCURACY METRICS ---")
	fmt.Fprintf(&b, "Pattern Identification Accuracy:  %.2f%% (%d/%d)\n", r.PatternAccuracy, r.PatternCorrect, r.TotalRecords)
	fmt.Fprintf(&b, "Severity Classification Accuracy: %.2f%% (%d/%d)\n", r.SeverityAccuracy, r.SeverityCorrect, r.TotalRecords)
	fmt.Fprintf(&b, "Overall Agreement (Pattern & Severity): %.2f%% (%d/%d)\n", r.OverallAccuracy, r.BothCorrect, r.TotalRecords)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "--- MISMATCH ANALYSIS ---")
	fmt.Fprintf(&b, "Found %d records with disagreements.\n", len(r.Mismatches))
	if len(r.Mismatches) > 0 {
		fmt.Fprintln(&b, "Top 5 Mismatches for Review:")
		limit := min(len(r.Mismatches), maxMismatchDisplay)
		for i := 0; i < limit; i++ {
			m := r.Mismatches[i]
			fmt.Fprintf(&b, "\n%d. Record: %s\n", i+1, m.Record)
			fmt.Fprintf(&b, "   - System: %s\n", m.System)
			fmt.Fprintf(&b, "   - Expert: %s\n", m.Expert)
		}
	}
	fmt.Fprintln(&b, banner)
	return b.String()
}

func orNA(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}
