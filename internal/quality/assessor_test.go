package quality

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
)

func completeRecord() *domain.TestRecord {
	return &domain.TestRecord{
		Demographics: domain.Demographics{Age: 65, Sex: domain.MALE, HeightCM: 175, WeightKG: 88},
		PFTResults: domain.PFTResults{
			PreBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: 3.95, PercentPredicted: 98},
				FEV1:         domain.Measurement{Liters: 2.53, PercentPredicted: 78},
				FEV1FVCRatio: domain.RatioMeasurement{Value: 64},
			},
			PostBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: 4.15, PercentPredicted: 103},
				FEV1:         domain.Measurement{Liters: 2.91, PercentPredicted: 90},
				FEV1FVCRatio: domain.RatioMeasurement{Value: 70},
			},
		},
	}
}

func TestAssessor_AssessCleanRecord(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	indicators := assessor.Assess(completeRecord())

	if indicators.DataCompleteness != CompletenessComplete {
		t.Errorf("DataCompleteness = %q, want %q", indicators.DataCompleteness, CompletenessComplete)
	}
	if indicators.CompletenessScore != 1.0 {
		t.Errorf("CompletenessScore = %v, want 1.0", indicators.CompletenessScore)
	}
	if indicators.BiologicalPlausibility != PlausibilityOK {
		t.Errorf("BiologicalPlausibility = %q, want %q", indicators.BiologicalPlausibility, PlausibilityOK)
	}
	if indicators.InternalConsistency != ConsistencyOK {
		t.Errorf("InternalConsistency = %q, want %q", indicators.InternalConsistency, ConsistencyOK)
	}
	if indicators.QualityGrade != GradeA {
		t.Errorf("QualityGrade = %q, want %q", indicators.QualityGrade, GradeA)
	}
	if issues := indicators.Issues(); len(issues) != 0 {
		t.Errorf("Issues() = %v, want none", issues)
	}
}

func TestAssessor_BiologicalPlausibility(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	tests := []struct {
		name   string
		mutate func(*domain.TestRecord)
		want   string
	}{
		{"Clean record", func(r *domain.TestRecord) {}, PlausibilityOK},
		{"Age below range", func(r *domain.TestRecord) { r.Demographics.Age = 2 }, PlausibilityQuestionableAge},
		{"Age above range", func(r *domain.TestRecord) { r.Demographics.Age = 101 }, PlausibilityQuestionableAge},
		{"FEV1 exceeds FVC", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator.FEV1.Liters = 4.5
		}, PlausibilityImpossibleRatio},
		{"Suspiciously low FEV1", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator.FEV1.Liters = 0.4
		}, PlausibilityExtremeLow},
		{"Suspiciously high FEV1", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator.FEV1.Liters = 6.5
			r.PFTResults.PreBronchodilator.FVC.Liters = 7.5
		}, PlausibilityExtremeHigh},
		{"Suspiciously high FVC", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator.FVC.Liters = 8.5
		}, PlausibilityExtremeHigh},
		{"Age outranks volume checks", func(r *domain.TestRecord) {
			r.Demographics.Age = 110
			r.PFTResults.PreBronchodilator.FEV1.Liters = 0.2
			r.PFTResults.PreBronchodilator.FVC.Liters = 0.3
		}, PlausibilityQuestionableAge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := completeRecord()
			tt.mutate(record)
			if got := assessor.checkBiologicalPlausibility(record); got != tt.want {
				t.Errorf("checkBiologicalPlausibility() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssessor_InternalConsistency(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	tests := []struct {
		name   string
		mutate func(*domain.TestRecord)
		want   string
	}{
		{"Clean record", func(r *domain.TestRecord) {}, ConsistencyOK},
		{"Reported ratio disagrees with volumes", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator.FEV1FVCRatio.Value = 70
		}, ConsistencyRatioMismatch},
		{"Post-bronchodilator FEV1 collapse", func(r *domain.TestRecord) {
			r.PFTResults.PostBronchodilator.FEV1.Liters = 2.0
		}, ConsistencyPostBDDecline},
		{"Small post-bronchodilator dip tolerated", func(r *domain.TestRecord) {
			r.PFTResults.PostBronchodilator.FEV1.Liters = 2.33
		}, ConsistencyOK},
		{"Missing baseline volumes", func(r *domain.TestRecord) {
			r.PFTResults.PreBronchodilator = domain.TestPhaseResult{}
		}, ConsistencyMissingBaseline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := completeRecord()
			tt.mutate(record)
			if got := assessor.checkInternalConsistency(record.PFTResults); got != tt.want {
				t.Errorf("checkInternalConsistency() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssessor_GradesTrackDefectCount(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	// One defect per added mutation, grades step A through D.
	record := completeRecord()
	if got := assessor.Assess(record).QualityGrade; got != GradeA {
		t.Errorf("grade with no defects = %q, want %q", got, GradeA)
	}

	record.PFTResults.PostBronchodilator.FEV1FVCRatio.Value = 0
	indicators := assessor.Assess(record)
	if indicators.DataCompleteness != CompletenessIncomplete {
		t.Fatalf("DataCompleteness = %q, want %q", indicators.DataCompleteness, CompletenessIncomplete)
	}
	if indicators.QualityGrade != GradeB {
		t.Errorf("grade with one defect = %q, want %q", indicators.QualityGrade, GradeB)
	}

	record.Demographics.Age = 1
	if got := assessor.Assess(record).QualityGrade; got != GradeC {
		t.Errorf("grade with two defects = %q, want %q", got, GradeC)
	}

	record.PFTResults.PostBronchodilator.FEV1.Liters = 1.9
	indicators = assessor.Assess(record)
	if indicators.QualityGrade != GradeD {
		t.Errorf("grade with three defects = %q, want %q", indicators.QualityGrade, GradeD)
	}
	if got := len(indicators.Issues()); got != 3 {
		t.Errorf("Issues() count = %d, want 3", got)
	}
}

func TestAssessor_CompletenessScore(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	record := completeRecord()
	record.PFTResults.PostBronchodilator = domain.TestPhaseResult{}

	indicators := assessor.Assess(record)
	if indicators.CompletenessScore != 0.5 {
		t.Errorf("CompletenessScore = %v, want 0.5", indicators.CompletenessScore)
	}
	if indicators.DataCompleteness != CompletenessIncomplete {
		t.Errorf("DataCompleteness = %q, want %q", indicators.DataCompleteness, CompletenessIncomplete)
	}
}

func TestAssessor_Aggregate(t *testing.T) {
	assessor := NewAssessor(logrus.New())

	clean := assessor.Assess(completeRecord())

	flawed := completeRecord()
	flawed.Demographics.Age = 2
	flawedIndicators := assessor.Assess(flawed)

	batch := assessor.Aggregate([]Indicators{clean, clean, flawedIndicators})

	if batch.Records != 3 {
		t.Errorf("Records = %d, want 3", batch.Records)
	}
	if batch.GradeCounts[GradeA] != 2 {
		t.Errorf("GradeCounts[A] = %d, want 2", batch.GradeCounts[GradeA])
	}
	if batch.GradeCounts[GradeB] != 1 {
		t.Errorf("GradeCounts[B] = %d, want 1", batch.GradeCounts[GradeB])
	}
	if batch.IssueCounts[PlausibilityQuestionableAge] != 1 {
		t.Errorf("IssueCounts[%q] = %d, want 1", PlausibilityQuestionableAge, batch.IssueCounts[PlausibilityQuestionableAge])
	}
}
