package report

import (
	"time"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/quality"
)

// Report is the comprehensive interpretation report assembled from one test
// record. Sections are pre-formatted display values; the machine-readable
// result lives in RawInterpretation when the caller asks for it.
type Report struct {
	Metadata              Metadata               `json:"report_metadata"`
	PatientDemographics   DemographicsSection    `json:"patient_demographics"`
	TestResults           TestResultsSection     `json:"test_results"`
	PredictedValues       PredictedSection       `json:"predicted_values"`
	InterpretationSummary SummarySection         `json:"interpretation_summary"`
	DetailedAnalysis      AnalysisSection        `json:"detailed_analysis"`
	ClinicalImpression    ImpressionSection      `json:"clinical_impression"`
	Recommendations       RecommendationsSection `json:"recommendations"`
	QualityIndicators     quality.Indicators     `json:"quality_indicators"`
	ReferenceInformation  ReferenceSection       `json:"reference_information"`

	RawInterpretation *domain.Interpretation `json:"raw_interpretation_data,omitempty"`
}

// Metadata identifies one generated report.
type Metadata struct {
	ReportID                 string    `json:"report_id"`
	GeneratedAt              time.Time `json:"report_generated"`
	GeneratorVersion         string    `json:"generator_version"`
	ReferenceEquations       string    `json:"reference_equations"`
	InterpretationGuidelines string    `json:"interpretation_guidelines"`
	ReportType               string    `json:"report_type"`
	RequiresPhysicianReview  bool      `json:"requires_physician_review"`
}

// DemographicsSection presents the patient profile with derived BMI.
type DemographicsSection struct {
	Age         string             `json:"age"`
	Sex         string             `json:"sex"`
	Height      string             `json:"height"`
	Weight      string             `json:"weight"`
	BMI         string             `json:"bmi"`
	BMICategory domain.BMICategory `json:"bmi_category"`
}

// TestResultsSection presents measured values for both phases plus the
// bronchodilator response assessment.
type TestResultsSection struct {
	PreBronchodilator      PhaseView    `json:"pre_bronchodilator"`
	PostBronchodilator     PhaseView    `json:"post_bronchodilator"`
	BronchodilatorResponse ResponseView `json:"bronchodilator_response"`
}

// MeasurementView is one formatted volume measurement. Interpretation is set
// on the pre-bronchodilator phase, Change on the post-bronchodilator phase.
type MeasurementView struct {
	Measured         string `json:"measured"`
	PercentPredicted string `json:"percent_predicted"`
	Interpretation   string `json:"interpretation,omitempty"`
	Change           string `json:"change,omitempty"`
}

// RatioView is the formatted FEV1/FVC ratio for one phase.
type RatioView struct {
	Measured       string `json:"measured"`
	Interpretation string `json:"interpretation,omitempty"`
	Change         string `json:"change,omitempty"`
}

// PhaseView groups the three measurements of one test phase.
type PhaseView struct {
	FVC          MeasurementView `json:"fvc"`
	FEV1         MeasurementView `json:"fev1"`
	FEV1FVCRatio RatioView       `json:"fev1_fvc_ratio"`
}

// ResponseView summarizes the FEV1 bronchodilator response.
type ResponseView struct {
	FEV1ChangeML          string                    `json:"fev1_change_ml"`
	FEV1PercentChange     string                    `json:"fev1_percent_change"`
	ClinicallySignificant bool                      `json:"clinically_significant"`
	Grade                 domain.ReversibilityGrade `json:"grade"`
	Interpretation        string                    `json:"interpretation"`
}

// PredictedSection presents the reference values the measurements were
// compared against.
type PredictedSection struct {
	ReferenceEquation string        `json:"reference_equation"`
	Ethnicity         string        `json:"ethnicity"`
	Values            PredictedView `json:"predicted_values"`
	LowerLimitNormal  LimitNote     `json:"lower_limit_normal"`
}

// PredictedView holds the formatted predicted values.
type PredictedView struct {
	FEV1         string `json:"fev1"`
	FVC          string `json:"fvc"`
	FEV1FVCRatio string `json:"fev1_fvc_ratio"`
}

// LimitNote carries the lower-limit-of-normal explanation.
type LimitNote struct {
	Note string `json:"note"`
}

// SummarySection is the at-a-glance interpretation outcome.
type SummarySection struct {
	VentilatoryPattern     domain.Pattern  `json:"ventilatory_pattern"`
	OverallSeverity        domain.Severity `json:"overall_severity"`
	BronchodilatorResponse string          `json:"bronchodilator_response"`
	Reversibility          string          `json:"reversibility"`
	PrimaryFinding         string          `json:"primary_finding"`
	ConfidenceIndicator    string          `json:"confidence_indicator"`
}

// AnalysisSection exposes the statistical backing of the interpretation.
type AnalysisSection struct {
	ZScores            ZScoreView     `json:"z_scores"`
	Percentiles        PercentileView `json:"percentiles"`
	ClinicalThresholds ThresholdView  `json:"clinical_thresholds"`
}

// ZScoreView holds the formatted z-scores.
type ZScoreView struct {
	FEV1         string `json:"fev1"`
	FVC          string `json:"fvc"`
	FEV1FVCRatio string `json:"fev1_fvc_ratio"`
	Note         string `json:"interpretation_note"`
}

// PercentileView holds the formatted percentile equivalents.
type PercentileView struct {
	FEV1         string `json:"fev1"`
	FVC          string `json:"fvc"`
	FEV1FVCRatio string `json:"fev1_fvc_ratio"`
}

// ThresholdView restates the decision thresholds applied.
type ThresholdView struct {
	LowerLimitNormal           string `json:"fev1_fvc_lln_threshold"`
	BronchodilatorSignificance string `json:"bronchodilator_significance"`
}

// ImpressionSection carries the narrative interpretation.
type ImpressionSection struct {
	PrimaryImpression     string   `json:"primary_impression"`
	DifferentialDiagnosis []string `json:"differential_diagnosis"`
	ClinicalCorrelation   string   `json:"clinical_correlation"`
}

// RecommendationsSection groups recommended actions by horizon.
type RecommendationsSection struct {
	ImmediateActions   []string     `json:"immediate_actions"`
	FollowUp           []string     `json:"follow_up"`
	AdditionalTesting  []string     `json:"additional_testing"`
	SpecialistReferral ReferralView `json:"specialist_referral"`
}

// ReferralView flags which specialties should see the patient and how soon.
type ReferralView struct {
	Pulmonology  bool    `json:"pulmonology"`
	Cardiology   bool    `json:"cardiology"`
	Rheumatology bool    `json:"rheumatology"`
	Urgency      Urgency `json:"urgency"`
}

// Urgency is the referral time frame.
type Urgency string

const (
	UrgencyRoutine    Urgency = "routine"
	UrgencySemiUrgent Urgency = "semi-urgent"
	UrgencyUrgent     Urgency = "urgent"
)

// ReferenceSection documents the standards the report is based on.
type ReferenceSection struct {
	ReferenceEquations       EquationInfo  `json:"reference_equations"`
	InterpretationGuidelines GuidelineInfo `json:"interpretation_guidelines"`
	QualityAssurance         AssuranceInfo `json:"quality_assurance"`
}

// EquationInfo cites the reference equation source.
type EquationInfo struct {
	Primary    string `json:"primary"`
	Population string `json:"population"`
	Citation   string `json:"citation"`
}

// GuidelineInfo cites the interpretation guideline source.
type GuidelineInfo struct {
	Primary                string `json:"primary"`
	BronchodilatorResponse string `json:"bronchodilator_response"`
	LowerLimitNormal       string `json:"lower_limit_normal"`
}

// AssuranceInfo cites the technical quality standards.
type AssuranceInfo struct {
	Standards            string `json:"standards"`
	EquipmentCalibration string `json:"equipment_calibration"`
	TechnicianTraining   string `json:"technician_training"`
}
