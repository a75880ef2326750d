// Package report assembles clinical spirometry reports from interpretation
// results: a comprehensive structured report for JSON consumers, a condensed
// text summary, and a plain-text rendering for file export.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/quality"
)

const (
	reportTitle    = "PULMONARY FUNCTION TEST REPORT"
	reportSubtitle = "Automated Preliminary Interpretation"
	summaryTitle   = "PULMONARY FUNCTION TEST - AUTOMATED PRELIMINARY REPORT"

	generatorVersion     = "1.0.0"
	referenceEquationTag = "GLI-2012"
	guidelineTag         = "ATS/ERS 2022"

	bannerWidth               = 80
	maxSummaryRecommendations = 5
)

// Bronchodilator response thresholds used for the narrative response grading.
const (
	significantPercentChange = 12.0
	significantVolumeChange  = 0.2
	borderlinePercentChange  = 8.0
)

// Differential diagnosis lists per pattern and reversibility.
var (
	differentialReversibleObstruction = []string{
		"Asthma",
		"Reversible COPD component",
		"Allergic bronchopulmonary aspergillosis",
		"Vocal cord dysfunction (if upper airway involvement)",
	}
	differentialFixedObstruction = []string{
		"Chronic obstructive pulmonary disease (COPD)",
		"Emphysema",
		"Chronic bronchitis",
		"Bronchiectasis",
	}
	differentialRestriction = []string{
		"Interstitial lung disease",
		"Pulmonary fibrosis",
		"Chest wall restriction",
		"Neuromuscular disease",
		"Pleural disease",
	}
	differentialMixed = []string{
		"Combined pulmonary fibrosis and emphysema",
		"COPD with restrictive component",
		"Sarcoidosis with airway involvement",
		"Advanced interstitial lung disease with secondary obstruction",
	}
	differentialNone = []string{"No specific pathology suggested"}
)

// Generator builds reports on top of the interpretation engine and the
// quality assessor. It holds no state between calls.
type Generator struct {
	logger      *logrus.Logger
	interpreter domain.Interpreter
	assessor    *quality.Assessor
}

// NewGenerator creates a report generator.
func NewGenerator(logger *logrus.Logger, interpreter domain.Interpreter, assessor *quality.Assessor) *Generator {
	return &Generator{
		logger:      logger,
		interpreter: interpreter,
		assessor:    assessor,
	}
}

// Comprehensive interprets the record and assembles the full structured
// report. With includeRaw the machine-readable interpretation is attached
// under raw_interpretation_data.
func (g *Generator) Comprehensive(record *domain.TestRecord, includeRaw bool) (*Report, error) {
	startTime := time.Now()

	interp, err := g.interpreter.Interpret(record)
	if err != nil {
		return nil, fmt.Errorf("failed to interpret spirometry record: %w", err)
	}

	result := &Report{
		Metadata:              newMetadata(),
		PatientDemographics:   formatDemographics(record.Demographics),
		TestResults:           formatTestResults(record.PFTResults, interp.Reversibility),
		PredictedValues:       formatPredicted(interp.PredictedValues),
		InterpretationSummary: summarize(interp),
		DetailedAnalysis:      analyze(interp),
		ClinicalImpression:    impressionSection(interp),
		Recommendations:       recommendationsSection(interp),
		QualityIndicators:     g.assessor.Assess(record),
		ReferenceInformation:  referenceInformation(),
	}
	if includeRaw {
		result.RawInterpretation = interp
	}

	g.logger.WithFields(logrus.Fields{
		"report_id":       result.Metadata.ReportID,
		"pattern":         interp.Pattern,
		"severity":        interp.Severity,
		"quality_grade":   result.QualityIndicators.QualityGrade,
		"processing_time": time.Since(startTime),
	}).Info("Comprehensive report generated")

	return result, nil
}

// Summary interprets the record and renders the condensed text report used by
// the CLI and MCP surfaces. At most five recommendations are listed.
func (g *Generator) Summary(record *domain.TestRecord) (string, error) {
	interp, err := g.interpreter.Interpret(record)
	if err != nil {
		return "", fmt.Errorf("failed to interpret spirometry record: %w", err)
	}

	d := record.Demographics
	response := "Negative"
	if interp.Reversibility.Significant {
		response = "Positive"
	}

	lines := []string{
		summaryTitle,
		"Generated: " + time.Now().Format("2006-01-02 15:04:05"),
		"",
		fmt.Sprintf("PATIENT: %d year old %s", d.Age, sexLabel(d.Sex)),
		fmt.Sprintf("HEIGHT: %s cm | WEIGHT: %s kg", trimFloat(d.HeightCM), trimFloat(d.WeightKG)),
		"",
		"RESULTS SUMMARY:",
		"Ventilatory Pattern: " + interp.Pattern.String(),
		"Severity: " + interp.Severity.String(),
		"Bronchodilator Response: " + response,
		"",
		"CLINICAL IMPRESSION:",
		interp.ClinicalImpression,
		"",
		"RECOMMENDATIONS:",
	}

	limit := min(len(interp.Recommendations), maxSummaryRecommendations)
	for i := 0; i < limit; i++ {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, interp.Recommendations[i]))
	}

	lines = append(lines,
		"",
		"NOTE: This is a computer-generated preliminary report.",
		"Final interpretation requires physician review and clinical correlation.")

	return strings.Join(lines, "\n"), nil
}

// Text interprets the record and renders the full report as plain text.
func (g *Generator) Text(record *domain.TestRecord) (string, error) {
	result, err := g.Comprehensive(record, false)
	if err != nil {
		return "", err
	}
	return result.RenderText(), nil
}

// JSON interprets the record and renders the comprehensive report as
// indented JSON.
func (g *Generator) JSON(record *domain.TestRecord, includeRaw bool) ([]byte, error) {
	result, err := g.Comprehensive(record, includeRaw)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// RenderText formats an already generated report for terminals and file
// export. Recommendations from all action groups are flattened into one
// numbered list.
func (r *Report) RenderText() string {
	banner := strings.Repeat("=", bannerWidth)

	lines := []string{
		banner,
		reportTitle,
		reportSubtitle,
		banner,
		"Generated: " + r.Metadata.GeneratedAt.Format(time.RFC3339),
		"Reference: " + r.PredictedValues.ReferenceEquation,
		"",
		"PATIENT DEMOGRAPHICS:",
		"Age: " + r.PatientDemographics.Age,
		"Sex: " + r.PatientDemographics.Sex,
		"Height: " + r.PatientDemographics.Height,
		"Weight: " + r.PatientDemographics.Weight,
		fmt.Sprintf("BMI: %s (%s)", r.PatientDemographics.BMI, r.PatientDemographics.BMICategory),
		"",
		"TEST RESULTS:",
		"Pre-Bronchodilator:",
		fmt.Sprintf("  FVC: %s (%s)", r.TestResults.PreBronchodilator.FVC.Measured, r.TestResults.PreBronchodilator.FVC.PercentPredicted),
		fmt.Sprintf("  FEV1: %s (%s)", r.TestResults.PreBronchodilator.FEV1.Measured, r.TestResults.PreBronchodilator.FEV1.PercentPredicted),
		"  FEV1/FVC: " + r.TestResults.PreBronchodilator.FEV1FVCRatio.Measured,
		"",
		"Post-Bronchodilator:",
		fmt.Sprintf("  FVC: %s (%s)", r.TestResults.PostBronchodilator.FVC.Measured, r.TestResults.PostBronchodilator.FVC.PercentPredicted),
		fmt.Sprintf("  FEV1: %s (%s)", r.TestResults.PostBronchodilator.FEV1.Measured, r.TestResults.PostBronchodilator.FEV1.PercentPredicted),
		"  FEV1/FVC: " + r.TestResults.PostBronchodilator.FEV1FVCRatio.Measured,
		"",
		"INTERPRETATION:",
		"Pattern: " + r.InterpretationSummary.VentilatoryPattern.String(),
		"Severity: " + r.InterpretationSummary.OverallSeverity.String(),
		"Bronchodilator Response: " + r.InterpretationSummary.BronchodilatorResponse,
		"",
		"CLINICAL IMPRESSION:",
		r.ClinicalImpression.PrimaryImpression,
		"",
		"RECOMMENDATIONS:",
	}

	n := 0
	for _, group := range [][]string{
		r.Recommendations.ImmediateActions,
		r.Recommendations.FollowUp,
		r.Recommendations.AdditionalTesting,
	} {
		for _, recommendation := range group {
			n++
			lines = append(lines, fmt.Sprintf("%d. %s", n, recommendation))
		}
	}

	lines = append(lines,
		"",
		banner,
		"DISCLAIMER:",
		"This is an automated preliminary interpretation.",
		"Final clinical correlation and interpretation must be performed by a qualified physician.",
		banner)

	return strings.Join(lines, "\n")
}

func newMetadata() Metadata {
	return Metadata{
		ReportID:                 uuid.NewString(),
		GeneratedAt:              time.Now().UTC(),
		GeneratorVersion:         generatorVersion,
		ReferenceEquations:       referenceEquationTag,
		InterpretationGuidelines: guidelineTag,
		ReportType:               reportSubtitle,
		RequiresPhysicianReview:  true,
	}
}

func formatDemographics(d domain.Demographics) DemographicsSection {
	return DemographicsSection{
		Age:         fmt.Sprintf("%d years", d.Age),
		Sex:         sexLabel(d.Sex),
		Height:      fmt.Sprintf("%s cm (%.1f inches)", trimFloat(d.HeightCM), d.HeightCM/2.54),
		Weight:      fmt.Sprintf("%s kg (%.1f lbs)", trimFloat(d.WeightKG), d.WeightKG*2.20462),
		BMI:         fmt.Sprintf("%.1f kg/m²", d.BMI()),
		BMICategory: d.BMICategory(),
	}
}

func formatTestResults(results domain.PFTResults, reversibility domain.Reversibility) TestResultsSection {
	pre := results.PreBronchodilator
	post := results.PostBronchodilator

	fev1Change := reversibility.FEV1ChangeLiters
	fev1PercentChange := reversibility.FEV1ChangePercent
	fvcChange := post.FVC.Liters - pre.FVC.Liters
	ratioChange := post.FEV1FVCRatio.Value - pre.FEV1FVCRatio.Value

	return TestResultsSection{
		PreBronchodilator: PhaseView{
			FVC: MeasurementView{
				Measured:         fmt.Sprintf("%.2f L", pre.FVC.Liters),
				PercentPredicted: trimFloat(pre.FVC.PercentPredicted) + "%",
				Interpretation:   interpretPercentPredicted(pre.FVC.PercentPredicted),
			},
			FEV1: MeasurementView{
				Measured:         fmt.Sprintf("%.2f L", pre.FEV1.Liters),
				PercentPredicted: trimFloat(pre.FEV1.PercentPredicted) + "%",
				Interpretation:   interpretPercentPredicted(pre.FEV1.PercentPredicted),
			},
			FEV1FVCRatio: RatioView{
				Measured:       fmt.Sprintf("%.0f%%", pre.FEV1FVCRatio.Value),
				Interpretation: interpretRatio(pre.FEV1FVCRatio.Value),
			},
		},
		PostBronchodilator: PhaseView{
			FVC: MeasurementView{
				Measured:         fmt.Sprintf("%.2f L", post.FVC.Liters),
				PercentPredicted: trimFloat(post.FVC.PercentPredicted) + "%",
				Change:           fmt.Sprintf("%+.2f L", fvcChange),
			},
			FEV1: MeasurementView{
				Measured:         fmt.Sprintf("%.2f L", post.FEV1.Liters),
				PercentPredicted: trimFloat(post.FEV1.PercentPredicted) + "%",
				Change:           fmt.Sprintf("%+.2f L (%+.1f%%)", fev1Change, fev1PercentChange),
			},
			FEV1FVCRatio: RatioView{
				Measured: fmt.Sprintf("%.0f%%", post.FEV1FVCRatio.Value),
				Change:   fmt.Sprintf("%+.0f%%", ratioChange),
			},
		},
		BronchodilatorResponse: ResponseView{
			FEV1ChangeML:          fmt.Sprintf("%.0f mL", fev1Change*1000),
			FEV1PercentChange:     fmt.Sprintf("%.1f%%", fev1PercentChange),
			ClinicallySignificant: fev1PercentChange > significantPercentChange && fev1Change > significantVolumeChange,
			Grade:                 reversibility.Grade(),
			Interpretation:        interpretResponse(fev1PercentChange, fev1Change),
		},
	}
}

// interpretPercentPredicted bands a percent-of-predicted value for display.
// These bands annotate individual measurements; severity grading of the
// overall defect uses pattern-specific thresholds instead.
func interpretPercentPredicted(percent float64) string {
	switch {
	case percent >= 80:
		return "Normal"
	case percent >= 70:
		return "Mildly reduced"
	case percent >= 60:
		return "Moderately reduced"
	case percent >= 50:
		return "Moderately severely reduced"
	default:
		return "Severely reduced"
	}
}

func interpretRatio(ratio float64) string {
	switch {
	case ratio >= 70:
		return "Normal"
	case ratio >= 60:
		return "Mildly reduced"
	case ratio >= 50:
		return "Moderately reduced"
	default:
		return "Severely reduced"
	}
}

func interpretResponse(percentChange, volumeChange float64) string {
	switch {
	case percentChange >= significantPercentChange && volumeChange >= significantVolumeChange:
		return "Significant positive response"
	case percentChange >= borderlinePercentChange:
		return "Borderline positive response"
	default:
		return "No significant response"
	}
}

func formatPredicted(predicted domain.PredictedValues) PredictedSection {
	return PredictedSection{
		ReferenceEquation: "Global Lung Initiative (GLI) 2012",
		Ethnicity:         "Caucasian (default)",
		Values: PredictedView{
			FEV1:         fmt.Sprintf("%.2f L", predicted.FEV1),
			FVC:          fmt.Sprintf("%.2f L", predicted.FVC),
			FEV1FVCRatio: fmt.Sprintf("%.1f%%", predicted.Ratio*100),
		},
		LowerLimitNormal: LimitNote{
			Note: "LLN calculated at 5th percentile (Z-score = -1.645)",
		},
	}
}

func summarize(interp *domain.Interpretation) SummarySection {
	response := "Negative"
	reversibility := "Fixed"
	if interp.Reversibility.Significant {
		response = "Positive"
		reversibility = "Reversible"
	}
	return SummarySection{
		VentilatoryPattern:     interp.Pattern,
		OverallSeverity:        interp.Severity,
		BronchodilatorResponse: response,
		Reversibility:          reversibility,
		PrimaryFinding:         primaryFinding(interp),
		ConfidenceIndicator:    fmt.Sprintf("%d%%", interp.Confidence),
	}
}

func primaryFinding(interp *domain.Interpretation) string {
	switch interp.Pattern {
	case domain.NORMAL:
		return "Normal spirometry"
	case domain.OBSTRUCTIVE:
		reversibility := "fixed"
		if interp.Reversibility.Significant {
			reversibility = "reversible"
		}
		return fmt.Sprintf("%s %s obstructive pattern", interp.Severity, reversibility)
	case domain.RESTRICTIVE:
		return fmt.Sprintf("%s restrictive pattern", interp.Severity)
	default:
		return fmt.Sprintf("%s mixed ventilatory pattern", interp.Severity)
	}
}

func analyze(interp *domain.Interpretation) AnalysisSection {
	return AnalysisSection{
		ZScores: ZScoreView{
			FEV1:         fmt.Sprintf("%.2f", interp.ZScores.FEV1),
			FVC:          fmt.Sprintf("%.2f", interp.ZScores.FVC),
			FEV1FVCRatio: fmt.Sprintf("%.2f", interp.ZScores.Ratio),
			Note:         "Z-scores represent number of standard deviations from predicted mean",
		},
		Percentiles: PercentileView{
			FEV1:         fmt.Sprintf("%.1fth percentile", interp.Percentiles.FEV1),
			FVC:          fmt.Sprintf("%.1fth percentile", interp.Percentiles.FVC),
			FEV1FVCRatio: fmt.Sprintf("%.1fth percentile", interp.Percentiles.Ratio),
		},
		ClinicalThresholds: ThresholdView{
			LowerLimitNormal:           "Values below 5th percentile (Z-score < -1.645) considered abnormal",
			BronchodilatorSignificance: "≥12% and ≥200mL improvement considered significant",
		},
	}
}

func impressionSection(interp *domain.Interpretation) ImpressionSection {
	return ImpressionSection{
		PrimaryImpression:     interp.ClinicalImpression,
		DifferentialDiagnosis: differentialDiagnosis(interp),
		ClinicalCorrelation:   clinicalCorrelation(interp),
	}
}

func differentialDiagnosis(interp *domain.Interpretation) []string {
	switch interp.Pattern {
	case domain.OBSTRUCTIVE:
		if interp.Reversibility.Significant {
			return differentialReversibleObstruction
		}
		return differentialFixedObstruction
	case domain.RESTRICTIVE:
		return differentialRestriction
	case domain.MIXED:
		return differentialMixed
	default:
		return differentialNone
	}
}

func clinicalCorrelation(interp *domain.Interpretation) string {
	var notes []string

	switch interp.Pattern {
	case domain.OBSTRUCTIVE:
		notes = append(notes, "Correlate with smoking history, occupational exposures, and symptom chronicity.")
		if interp.Reversibility.Significant {
			notes = append(notes, "Consider asthma triggers, allergic history, and response to bronchodilator therapy.")
		}
	case domain.RESTRICTIVE:
		notes = append(notes,
			"Recommend chest imaging and consider autoimmune workup if indicated.",
			"Evaluate for dyspnea on exertion and exercise tolerance.")
	case domain.MIXED:
		notes = append(notes,
			"Complex pattern requiring comprehensive pulmonary evaluation.",
			"Consider high-resolution CT chest for detailed assessment.")
	}

	if interp.Severity == domain.MODERATELY_SEVERE || interp.Severity == domain.SEVERE {
		notes = append(notes, "Severity suggests significant functional impairment warranting specialist evaluation.")
	}

	if len(notes) == 0 {
		return "Correlate with clinical presentation and symptoms."
	}
	return strings.Join(notes, " ")
}

func recommendationsSection(interp *domain.Interpretation) RecommendationsSection {
	return RecommendationsSection{
		ImmediateActions:   immediateActions(interp),
		FollowUp:           followUpActions(interp),
		AdditionalTesting:  additionalTesting(interp),
		SpecialistReferral: specialistReferral(interp),
	}
}

func immediateActions(interp *domain.Interpretation) []string {
	switch {
	case interp.Pattern == domain.NORMAL:
		return []string{
			"Continue current health maintenance",
			"Monitor for development of respiratory symptoms",
		}
	case interp.Reversibility.Significant:
		return []string{
			"Consider trial of bronchodilator therapy",
			"Evaluate for asthma management if not already established",
		}
	case interp.Severity.Rank() >= domain.SEVERE.Rank():
		return []string{
			"Urgent pulmonology consultation recommended",
			"Consider oxygen saturation monitoring",
		}
	default:
		return nil
	}
}

func followUpActions(interp *domain.Interpretation) []string {
	var recommendations []string

	if interp.Pattern != domain.NORMAL {
		if interp.Reversibility.Significant {
			recommendations = append(recommendations, "Repeat spirometry in 3-6 months to assess treatment response")
		} else {
			recommendations = append(recommendations, "Annual spirometry to monitor disease progression")
		}
	}

	if interp.Pattern == domain.OBSTRUCTIVE && !interp.Reversibility.Significant {
		recommendations = append(recommendations,
			"Smoking cessation counseling if applicable",
			"Pneumococcal and annual influenza vaccination")
	}

	return recommendations
}

func additionalTesting(interp *domain.Interpretation) []string {
	switch {
	case interp.Pattern == domain.RESTRICTIVE:
		return []string{
			"Complete pulmonary function testing with lung volumes and DLCO",
			"Chest X-ray or CT if not recently performed",
		}
	case interp.Pattern == domain.MIXED:
		return []string{
			"Complete PFTs including lung volumes, DLCO, and respiratory muscle strength",
			"High-resolution CT chest",
		}
	case interp.Pattern == domain.OBSTRUCTIVE && interp.Severity != domain.MILD:
		return []string{
			"Consider arterial blood gas analysis",
			"Six-minute walk test for functional assessment",
		}
	default:
		return nil
	}
}

func specialistReferral(interp *domain.Interpretation) ReferralView {
	referral := ReferralView{Urgency: UrgencyRoutine}

	switch {
	case interp.Severity.Rank() >= domain.MODERATELY_SEVERE.Rank():
		referral.Pulmonology = true
		referral.Urgency = UrgencySemiUrgent
		if interp.Severity == domain.VERY_SEVERE {
			referral.Urgency = UrgencyUrgent
		}
	case interp.Pattern == domain.RESTRICTIVE:
		referral.Pulmonology = true
		if interp.Severity != domain.MILD {
			referral.Rheumatology = true
		}
	case interp.Pattern == domain.MIXED:
		referral.Pulmonology = true
		referral.Urgency = UrgencySemiUrgent
	}

	return referral
}

func referenceInformation() ReferenceSection {
	return ReferenceSection{
		ReferenceEquations: EquationInfo{
			Primary:    "Global Lung Initiative (GLI) 2012",
			Population: "Multi-ethnic reference values, 3-95 years",
			Citation:   "Quanjer PH, et al. Eur Respir J. 2012;40(6):1324-43",
		},
		InterpretationGuidelines: GuidelineInfo{
			Primary:                "ATS/ERS Task Force on Standardisation of Lung Function Testing",
			BronchodilatorResponse: "ATS/ERS 2005 criteria: ≥12% and ≥200mL",
			LowerLimitNormal:       "5th percentile (Z-score ≤ -1.645)",
		},
		QualityAssurance: AssuranceInfo{
			Standards:            "ATS/ERS 2019 Technical Standards",
			EquipmentCalibration: "Daily calibration recommended",
			TechnicianTraining:   "Certified pulmonary function technologist preferred",
		},
	}
}

func sexLabel(sex domain.Sex) string {
	if sex == domain.MALE {
		return "Male"
	}
	return "Female"
}

// trimFloat renders a float without trailing zeros, so whole-number inputs
// round-trip the way they were submitted.
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
