// Package quality grades the technical quality of spirometry submissions.
// Indicators cover data completeness, biological plausibility and internal
// consistency between reported and derivable values. The overall grade
// summarizes how much weight an automated interpretation of the record
// should carry before physician review.
package quality

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/pkg/gli"
)

// Indicator messages reported for each quality dimension.
const (
	CompletenessComplete   = "Complete"
	CompletenessIncomplete = "Incomplete"

	PlausibilityOK              = "Plausible"
	PlausibilityQuestionableAge = "Questionable age"
	PlausibilityImpossibleRatio = "FEV1 > FVC (physiologically impossible)"
	PlausibilityExtremeLow      = "Extremely low values - verify"
	PlausibilityExtremeHigh     = "Extremely high values - verify"

	ConsistencyOK              = "Consistent"
	ConsistencyRatioMismatch   = "Ratio calculation inconsistent"
	ConsistencyPostBDDecline   = "Unexpected post-bronchodilator decrease"
	ConsistencyMissingBaseline = "Pre-bronchodilator data missing"
)

const (
	// Reported and calculated FEV1/FVC ratio may differ by at most this many
	// percentage points before the record is flagged.
	ratioTolerancePercent = 2.0

	// A post-bronchodilator FEV1 drop beyond this volume suggests a technical
	// problem with one of the two test phases.
	maxPostBDDeclineLiters = 0.3

	// Number of measurement groups a complete submission carries
	// (FVC, FEV1 and ratio for each of the two phases).
	expectedMeasurementGroups = 6
)

// Grade is the summary quality grade assigned to a submission.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// Indicators is the per-record quality assessment attached to reports.
type Indicators struct {
	DataCompleteness       string  `json:"data_completeness"`
	CompletenessScore      float64 `json:"completeness_score"`
	BiologicalPlausibility string  `json:"biological_plausibility"`
	InternalConsistency    string  `json:"internal_consistency"`
	QualityGrade           Grade   `json:"quality_grade"`
}

// Issues lists the indicator messages that describe a defect, in a stable
// order. A fully clean record returns nil.
func (i Indicators) Issues() []string {
	var issues []string
	if i.DataCompleteness != CompletenessComplete {
		issues = append(issues, CompletenessIncomplete)
	}
	if i.BiologicalPlausibility != PlausibilityOK {
		issues = append(issues, i.BiologicalPlausibility)
	}
	if i.InternalConsistency != ConsistencyOK {
		issues = append(issues, i.InternalConsistency)
	}
	return issues
}

// Assessor evaluates submission quality. It never rejects a record; intake
// validation owns rejection, the assessor only annotates.
type Assessor struct {
	logger *logrus.Logger
}

// NewAssessor creates a quality assessor.
func NewAssessor(logger *logrus.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// Assess computes the quality indicators for one test record.
func (a *Assessor) Assess(record *domain.TestRecord) Indicators {
	present := countPresentGroups(record.PFTResults)

	indicators := Indicators{
		CompletenessScore:      float64(present) / float64(expectedMeasurementGroups),
		BiologicalPlausibility: a.checkBiologicalPlausibility(record),
		InternalConsistency:    a.checkInternalConsistency(record.PFTResults),
	}
	if present == expectedMeasurementGroups {
		indicators.DataCompleteness = CompletenessComplete
	} else {
		indicators.DataCompleteness = CompletenessIncomplete
	}
	indicators.QualityGrade = gradeFor(indicators)

	a.logger.WithFields(logrus.Fields{
		"completeness": indicators.DataCompleteness,
		"plausibility": indicators.BiologicalPlausibility,
		"consistency":  indicators.InternalConsistency,
		"grade":        indicators.QualityGrade,
	}).Debug("Quality assessment completed")

	return indicators
}

// checkBiologicalPlausibility flags values a human lung cannot produce or
// values extreme enough to suggest a unit or transcription error. Checks are
// ordered from hard impossibility to soft suspicion; the first hit wins.
func (a *Assessor) checkBiologicalPlausibility(record *domain.TestRecord) string {
	age := record.Demographics.Age
	pre := record.PFTResults.PreBronchodilator

	if !gli.AgeInRange(age) {
		return PlausibilityQuestionableAge
	}
	if pre.FEV1.Liters > pre.FVC.Liters {
		return PlausibilityImpossibleRatio
	}
	if pre.FEV1.Liters < gli.SuspectLowVolumeLiters || pre.FVC.Liters < gli.SuspectLowVolumeLiters {
		return PlausibilityExtremeLow
	}
	if pre.FEV1.Liters > gli.SuspectHighFEV1Liters || pre.FVC.Liters > gli.SuspectHighFVCLiters {
		return PlausibilityExtremeHigh
	}
	return PlausibilityOK
}

// checkInternalConsistency cross-checks the reported ratio against the one
// derivable from the volumes, and the post-bronchodilator FEV1 against the
// baseline.
func (a *Assessor) checkInternalConsistency(results domain.PFTResults) string {
	pre := results.PreBronchodilator
	post := results.PostBronchodilator

	if pre.FVC.Liters <= 0 {
		return ConsistencyMissingBaseline
	}

	calculatedRatio := (pre.FEV1.Liters / pre.FVC.Liters) * 100
	if math.Abs(calculatedRatio-pre.FEV1FVCRatio.Value) > ratioTolerancePercent {
		return ConsistencyRatioMismatch
	}

	fev1Change := post.FEV1.Liters - pre.FEV1.Liters
	if fev1Change < -maxPostBDDeclineLiters {
		return ConsistencyPostBDDecline
	}

	return ConsistencyOK
}

// gradeFor derives the summary grade from the number of defective indicators.
func gradeFor(indicators Indicators) Grade {
	defects := 0
	if indicators.DataCompleteness != CompletenessComplete {
		defects++
	}
	if indicators.BiologicalPlausibility != PlausibilityOK {
		defects++
	}
	if indicators.InternalConsistency != ConsistencyOK {
		defects++
	}

	switch defects {
	case 0:
		return GradeA
	case 1:
		return GradeB
	case 2:
		return GradeC
	default:
		return GradeD
	}
}

func countPresentGroups(results domain.PFTResults) int {
	present := 0
	for _, phase := range []domain.TestPhaseResult{results.PreBronchodilator, results.PostBronchodilator} {
		if phase.FEV1.Liters > 0 {
			present++
		}
		if phase.FVC.Liters > 0 {
			present++
		}
		if phase.FEV1FVCRatio.Value > 0 {
			present++
		}
	}
	return present
}

// BatchQuality aggregates per-record indicators for dataset-level review.
type BatchQuality struct {
	Records     int            `json:"records"`
	GradeCounts map[Grade]int  `json:"grade_counts"`
	IssueCounts map[string]int `json:"issue_counts"`
}

// Aggregate tallies grades and issues across a batch of assessments.
func (a *Assessor) Aggregate(all []Indicators) BatchQuality {
	batch := BatchQuality{
		Records:     len(all),
		GradeCounts: make(map[Grade]int),
		IssueCounts: make(map[string]int),
	}
	for _, indicators := range all {
		batch.GradeCounts[indicators.QualityGrade]++
		for _, issue := range indicators.Issues() {
			batch.IssueCounts[issue]++
		}
	}
	return batch
}
