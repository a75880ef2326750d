package domain

import (
	"errors"
	"fmt"
	"time"
)

// Core Data Models

// Demographics represents the patient profile used for reference-value
// prediction. Immutable, supplied once per test record.
type Demographics struct {
	Age      int     `json:"age"`
	Sex      Sex     `json:"sex"`
	HeightCM float64 `json:"height_cm"`
	WeightKG float64 `json:"weight_kg"`
}

// BMI returns the body mass index in kg/m2, or 0 when height is not positive.
func (d Demographics) BMI() float64 {
	if d.HeightCM <= 0 {
		return 0
	}
	heightM := d.HeightCM / 100.0
	return d.WeightKG / (heightM * heightM)
}

// BMICategory returns the WHO category for the patient's BMI.
func (d Demographics) BMICategory() BMICategory {
	bmi := d.BMI()
	switch {
	case bmi < 18.5:
		return UNDERWEIGHT
	case bmi < 25:
		return NORMAL_WEIGHT
	case bmi < 30:
		return OVERWEIGHT
	default:
		return OBESE
	}
}

// Validate ensures the demographic data meets medical software requirements.
// This is the same contract the itemized record validation enforces; it exists
// so stored records can be re-checked in isolation.
func (d Demographics) Validate() error {
	if d.Age < 3 || d.Age > 100 {
		return fmt.Errorf("demographics validation: %w", errors.New("age must be between 3 and 100 years"))
	}
	if !d.Sex.IsValid() {
		return fmt.Errorf("demographics validation: %w", ErrInvalidSex)
	}
	if d.HeightCM < 100 || d.HeightCM > 220 {
		return fmt.Errorf("demographics validation: %w", errors.New("height must be between 100 and 220 cm"))
	}
	return nil
}

// Measurement represents a lung-function quantity with its absolute value in
// liters and its value as percent of predicted.
type Measurement struct {
	Liters           float64 `json:"liters"`
	PercentPredicted float64 `json:"percent_predicted"`
}

// RatioMeasurement represents the FEV1/FVC ratio expressed as a percentage
// value, not liters and not a fraction.
type RatioMeasurement struct {
	Value float64 `json:"value"`
}

// TestPhaseResult bundles the FVC, FEV1 and ratio measurements for one test
// phase (pre- or post-bronchodilator).
type TestPhaseResult struct {
	FVC          Measurement      `json:"fvc"`
	FEV1         Measurement      `json:"fev1"`
	FEV1FVCRatio RatioMeasurement `json:"fev1_fvc_ratio"`
}

// PFTResults holds the two bronchodilator phases of a spirometry session.
type PFTResults struct {
	PreBronchodilator  TestPhaseResult `json:"pre_bronchodilator"`
	PostBronchodilator TestPhaseResult `json:"post_bronchodilator"`
}

// TestRecord represents one complete spirometry test submission.
// PatientID and TestDate are optional caller-supplied metadata carried through
// to reports and stored records; the engine never reads them.
type TestRecord struct {
	PatientID    string       `json:"patient_id,omitempty"`
	TestDate     string       `json:"test_date,omitempty"`
	Demographics Demographics `json:"demographics"`
	PFTResults   PFTResults   `json:"pft_results"`
}

// Derived Models

// PredictedValues holds the reference-equation predictions for a demographic
// profile. The ratio is a fraction (predicted FEV1 / predicted FVC), unlike
// RatioMeasurement which is a percentage. Derived, never stored long-term.
type PredictedValues struct {
	FEV1  float64 `json:"fev1"`
	FVC   float64 `json:"fvc"`
	Ratio float64 `json:"fev1_fvc_ratio"`
}

// ZScoreSet holds the three z-scores driving pattern classification.
// Z-scores are classification inputs, never stored as patient history.
type ZScoreSet struct {
	FEV1  float64 `json:"fev1"`
	FVC   float64 `json:"fvc"`
	Ratio float64 `json:"fev1_fvc"`
}

// PercentileSet holds the percentile equivalents of a ZScoreSet.
type PercentileSet struct {
	FEV1  float64 `json:"fev1"`
	FVC   float64 `json:"fvc"`
	Ratio float64 `json:"fev1_fvc"`
}

// Reversibility represents the bronchodilator response assessment.
// Significance requires both a relative and an absolute improvement on the
// same measurement; either FEV1 or FVC qualifying makes the test reversible.
type Reversibility struct {
	Significant       bool    `json:"significant"`
	FEV1ChangePercent float64 `json:"fev1_change_percent"`
	FEV1ChangeLiters  float64 `json:"fev1_change_liters"`
	FVCChangePercent  float64 `json:"fvc_change_percent"`
	FVCChangeLiters   float64 `json:"fvc_change_liters"`
}

// Grade returns the clinical reporting category for the response.
// SIGNIFICANT mirrors the significance rule; BORDERLINE is an FEV1
// improvement of at least 8% that does not meet full criteria.
func (r Reversibility) Grade() ReversibilityGrade {
	if r.Significant {
		return SIGNIFICANT
	}
	if r.FEV1ChangePercent >= 8 {
		return BORDERLINE
	}
	return NO_RESPONSE
}

// Interpretation is the engine's sole output: one immutable result per
// interpreted test record. It carries no timestamps and no identifiers so
// that identical inputs always produce byte-identical interpretations;
// callers that need provenance wrap it in an InterpretationRecord.
type Interpretation struct {
	Pattern         Pattern         `json:"pattern"`
	Severity        Severity        `json:"severity"`
	FEV1Severity    Severity        `json:"fev1_severity"`
	FVCSeverity     Severity        `json:"fvc_severity"`
	Reversibility   Reversibility   `json:"reversibility"`
	ZScores         ZScoreSet       `json:"z_scores"`
	Percentiles     PercentileSet   `json:"percentiles"`
	PredictedValues PredictedValues `json:"predicted_values"`
	Confidence      int             `json:"confidence"`

	ClinicalImpression string   `json:"clinical_impression"`
	Recommendations    []string `json:"recommendations"`
}

// Validate ensures the interpretation satisfies its structural invariants
// before it is persisted or reported.
func (i *Interpretation) Validate() error {
	if !i.Pattern.IsValid() {
		return fmt.Errorf("interpretation validation: %w", ErrInvalidPattern)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("interpretation validation: %w", ErrInvalidSeverity)
	}
	if (i.Pattern == NORMAL) != (i.Severity == NORMAL_SEVERITY) {
		return fmt.Errorf("interpretation validation: %w",
			errors.New("severity is Normal exactly when pattern is Normal"))
	}
	if i.Confidence < 50 || i.Confidence > 99 {
		return fmt.Errorf("interpretation validation: %w",
			errors.New("confidence must be within [50, 99]"))
	}
	return nil
}

// Storage Models

// InterpretationRecord represents a stored interpretation with its input and
// audit metadata. This is the envelope persisted by the history store and the
// Postgres repository; the embedded Interpretation is never mutated.
type InterpretationRecord struct {
	ID               string         `json:"id"`
	PatientID        string         `json:"patient_id,omitempty"`
	Source           string         `json:"source"` // api, cli, mcp
	Demographics     Demographics   `json:"demographics"`
	Results          PFTResults     `json:"results"`
	Interpretation   Interpretation `json:"interpretation"`
	ProcessingTimeMS int            `json:"processing_time_ms"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate ensures a record is safe to persist.
func (r *InterpretationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record validation: %w", errors.New("ID is required"))
	}
	if err := r.Interpretation.Validate(); err != nil {
		return fmt.Errorf("record validation: %w", err)
	}
	return nil
}
