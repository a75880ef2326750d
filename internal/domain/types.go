// Package domain contains core business entities and types for spirometry
// interpretation following ATS/ERS pulmonary function testing standards.
//
// Reference: Stanojevic et al. (2022) ERS/ATS technical standard on interpretive
// strategies for routine lung function tests. Eur Respir J. 60(1):2101499.
// doi: 10.1183/13993003.01499-2021
package domain

import (
	"errors"
)

// Sex represents the biological sex used for reference-value selection.
// Spirometry reference equations are sex-specific; this is not a demographic
// preference field.
type Sex string

const (
	MALE   Sex = "M"
	FEMALE Sex = "F"
)

// Pattern represents the ventilatory pattern category of a spirometry test.
// These categories follow the ATS/ERS 2022 interpretive strategy and are
// assigned from z-scores against the lower limit of normal.
type Pattern string

const (
	NORMAL      Pattern = "Normal"
	OBSTRUCTIVE Pattern = "Obstructive"
	RESTRICTIVE Pattern = "Restrictive"
	MIXED       Pattern = "Mixed"
)

// Severity represents the severity tier of a ventilatory defect.
// Tiers are graded from percent-of-predicted values with pattern-specific
// thresholds; a severity is only meaningful together with its pattern.
type Severity string

const (
	NORMAL_SEVERITY   Severity = "Normal"
	MILD              Severity = "Mild"
	MODERATE          Severity = "Moderate"
	MODERATELY_SEVERE Severity = "Moderately Severe"
	SEVERE            Severity = "Severe"
	VERY_SEVERE       Severity = "Very Severe"
)

// ReversibilityGrade represents the bronchodilator response category used in
// clinical reporting. SIGNIFICANT matches the ATS/ERS significance criteria;
// BORDERLINE flags responses worth re-testing.
type ReversibilityGrade string

const (
	NO_RESPONSE ReversibilityGrade = "None"
	BORDERLINE  ReversibilityGrade = "Borderline"
	SIGNIFICANT ReversibilityGrade = "Significant"
)

// BMICategory represents the WHO body-mass-index category reported alongside
// demographics. Extremes of BMI affect lung volumes and are flagged for
// clinical correlation.
type BMICategory string

const (
	UNDERWEIGHT   BMICategory = "Underweight"
	NORMAL_WEIGHT BMICategory = "Normal"
	OVERWEIGHT    BMICategory = "Overweight"
	OBESE         BMICategory = "Obese"
)

// Validation errors for medical data integrity
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSex      = errors.New("invalid biological sex")
	ErrInvalidPattern  = errors.New("invalid ventilatory pattern")
	ErrInvalidSeverity = errors.New("invalid severity grade")
)

// IsValid validates the biological sex category.
func (s Sex) IsValid() bool {
	switch s {
	case MALE, FEMALE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the sex category.
func (s Sex) String() string {
	return string(s)
}

// IsValid validates that the Pattern is one of the four recognized
// ventilatory pattern categories. This is critical for medical software to
// ensure only valid patterns reach clinical reporting.
func (p Pattern) IsValid() bool {
	switch p {
	case NORMAL, OBSTRUCTIVE, RESTRICTIVE, MIXED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the pattern.
// Required for proper logging and audit trails in medical software.
func (p Pattern) String() string {
	return string(p)
}

// LogFields returns structured logging fields for audit trails.
// Critical for medical software compliance and traceability.
func (p Pattern) LogFields() map[string]any {
	return map[string]any{
		"pattern":            string(p),
		"description":        p.ClinicalDescription(),
		"is_valid":           p.IsValid(),
		"requires_follow_up": p.RequiresFollowUp(),
	}
}

// ClinicalDescription returns a human-readable description of the pattern
// for clinical reporting and patient communication.
func (p Pattern) ClinicalDescription() string {
	switch p {
	case NORMAL:
		return "Normal - No ventilatory defect identified"
	case OBSTRUCTIVE:
		return "Obstructive - Airflow limitation with reduced FEV1/FVC ratio"
	case RESTRICTIVE:
		return "Restrictive - Reduced lung volumes with preserved FEV1/FVC ratio"
	case MIXED:
		return "Mixed - Combined obstructive and restrictive defect"
	default:
		return "Unknown pattern"
	}
}

// RequiresFollowUp determines if the pattern requires clinical follow-up.
// Any non-normal pattern warrants review by the requesting clinician.
func (p Pattern) RequiresFollowUp() bool {
	switch p {
	case NORMAL:
		return false
	case OBSTRUCTIVE, RESTRICTIVE, MIXED:
		return true
	default:
		return true // Conservative approach for unknown patterns
	}
}

// IsValid validates the severity grade.
func (s Severity) IsValid() bool {
	switch s {
	case NORMAL_SEVERITY, MILD, MODERATE, MODERATELY_SEVERE, SEVERE, VERY_SEVERE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity grade.
func (s Severity) String() string {
	return string(s)
}

// severityRank orders severity grades from least to most severe.
// Used for comparisons in referral logic and expert-agreement scoring.
var severityRank = map[Severity]int{
	NORMAL_SEVERITY:   0,
	MILD:              1,
	MODERATE:          2,
	MODERATELY_SEVERE: 3,
	SEVERE:            4,
	VERY_SEVERE:       5,
}

// Rank returns the ordinal position of the severity grade, with NORMAL_SEVERITY
// lowest. Invalid grades rank below NORMAL_SEVERITY.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return -1
}

// WorseThan reports whether s is a more severe grade than other.
func (s Severity) WorseThan(other Severity) bool {
	return s.Rank() > other.Rank()
}

// IsValid validates the bronchodilator response grade.
func (rg ReversibilityGrade) IsValid() bool {
	switch rg {
	case NO_RESPONSE, BORDERLINE, SIGNIFICANT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the response grade.
func (rg ReversibilityGrade) String() string {
	return string(rg)
}

// IsValid validates the BMI category.
func (bc BMICategory) IsValid() bool {
	switch bc {
	case UNDERWEIGHT, NORMAL_WEIGHT, OVERWEIGHT, OBESE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the BMI category.
func (bc BMICategory) String() string {
	return string(bc)
}
