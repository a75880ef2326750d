package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/pft-interp-server/internal/domain"
)

// Summary is the aggregate document produced at the end of a batch run.
type Summary struct {
	Metadata             Metadata            `json:"batch_metadata"`
	PatternDistribution  map[string]int      `json:"pattern_distribution"`
	SeverityDistribution map[string]int      `json:"severity_distribution"`
	Demographics         DemographicsSummary `json:"demographics_summary"`
	ClinicalInsights     ClinicalInsights    `json:"clinical_insights"`
}

// Metadata describes the batch run itself.
type Metadata struct {
	TotalRecords          int       `json:"total_pfts"`
	ProcessedSuccessfully int       `json:"processed_successfully"`
	ProcessingErrors      int       `json:"processing_errors"`
	SuccessRate           string    `json:"success_rate"`
	ProcessingDate        time.Time `json:"processing_date"`
}

// DemographicsSummary aggregates the demographic spread of a batch.
type DemographicsSummary struct {
	AgeStatistics    FieldStats     `json:"age_statistics"`
	SexDistribution  map[string]int `json:"sex_distribution"`
	HeightStatistics FieldStats     `json:"height_statistics"`
}

// FieldStats holds mean, min, max and count for one numeric field.
type FieldStats struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ClinicalInsights summarizes clinically notable aggregates. When no
// records interpreted successfully only Note is populated.
type ClinicalInsights struct {
	Note                      string            `json:"note,omitempty"`
	AbnormalRate              string            `json:"abnormal_rate,omitempty"`
	ObstructivePredominance   bool              `json:"obstructive_predominance"`
	SevereCases               int               `json:"severe_cases"`
	ReversibilityDistribution map[string]int    `json:"reversibility_distribution,omitempty"`
	QualityIndicators         QualityIndicators `json:"quality_indicators"`
}

// QualityIndicators carries batch-level processing quality figures.
type QualityIndicators struct {
	ProcessingSuccessRate string `json:"processing_success_rate"`
	DataCompleteness      string `json:"data_completeness"`
}

func buildSummary(records []Record, outcomes []Outcome, processed, errored int) *Summary {
	summary := &Summary{
		Metadata: Metadata{
			TotalRecords:          len(records),
			ProcessedSuccessfully: processed,
			ProcessingErrors:      errored,
			SuccessRate:           ratePercent(processed, len(records)),
			ProcessingDate:        time.Now().UTC(),
		},
		PatternDistribution:  emptyPatternDistribution(),
		SeverityDistribution: emptySeverityDistribution(),
		Demographics:         summarizeDemographics(records),
	}

	reversibility := map[string]int{
		distributionKey(string(domain.NO_RESPONSE)): 0,
		distributionKey(string(domain.BORDERLINE)):  0,
		distributionKey(string(domain.SIGNIFICANT)): 0,
	}
	for _, outcome := range outcomes {
		if outcome.Status != StatusSuccess || outcome.Interpretation == nil {
			continue
		}
		interp := outcome.Interpretation

		if key := distributionKey(string(interp.Pattern)); key != "" {
			if _, ok := summary.PatternDistribution[key]; ok {
				summary.PatternDistribution[key]++
			}
		}
		if key := distributionKey(string(interp.Severity)); key != "" {
			if _, ok := summary.SeverityDistribution[key]; ok {
				summary.SeverityDistribution[key]++
			}
		}
		reversibility[distributionKey(string(interp.Reversibility.Grade()))]++
	}

	summary.ClinicalInsights = buildInsights(summary, reversibility, processed, len(records))
	return summary
}

func buildInsights(summary *Summary, reversibility map[string]int, processed, total int) ClinicalInsights {
	if processed == 0 {
		return ClinicalInsights{
			Note: "No successful interpretations to analyze",
			QualityIndicators: QualityIndicators{
				ProcessingSuccessRate: ratePercent(0, total),
				DataCompleteness:      "Assessed per individual case",
			},
		}
	}

	normal := summary.PatternDistribution["normal"]
	abnormal := processed - normal

	return ClinicalInsights{
		AbnormalRate:              fmt.Sprintf("%.1f%%", float64(abnormal)/float64(processed)*100),
		ObstructivePredominance:   summary.PatternDistribution["obstructive"] > summary.PatternDistribution["restrictive"],
		SevereCases:               summary.SeverityDistribution["severe"] + summary.SeverityDistribution["very_severe"],
		ReversibilityDistribution: reversibility,
		QualityIndicators: QualityIndicators{
			ProcessingSuccessRate: ratePercent(processed, total),
			DataCompleteness:      "Assessed per individual case",
		},
	}
}

func summarizeDemographics(records []Record) DemographicsSummary {
	var ages, heights []float64
	sexes := map[string]int{"M": 0, "F": 0}

	for i := range records {
		demo := records[i].Demographics
		if demo.Age != 0 {
			ages = append(ages, float64(demo.Age))
		}
		if demo.HeightCM != 0 {
			heights = append(heights, demo.HeightCM)
		}
		sex := strings.ToUpper(strings.TrimSpace(string(demo.Sex)))
		if _, ok := sexes[sex]; ok {
			sexes[sex]++
		}
	}

	return DemographicsSummary{
		AgeStatistics:    fieldStats(ages),
		SexDistribution:  sexes,
		HeightStatistics: fieldStats(heights),
	}
}

func fieldStats(values []float64) FieldStats {
	if len(values) == 0 {
		return FieldStats{}
	}

	stats := FieldStats{
		Min:   values[0],
		Max:   values[0],
		Count: len(values),
	}
	var sum float64
	for _, v := range values {
		sum += v
		stats.Min = min(stats.Min, v)
		stats.Max = max(stats.Max, v)
	}
	stats.Mean = sum / float64(len(values))
	return stats
}

func emptyPatternDistribution() map[string]int {
	counts := make(map[string]int, 4)
	for _, pattern := range []domain.Pattern{domain.NORMAL, domain.OBSTRUCTIVE, domain.RESTRICTIVE, domain.MIXED} {
		counts[distributionKey(string(pattern))] = 0
	}
	return counts
}

func emptySeverityDistribution() map[string]int {
	counts := make(map[string]int, 6)
	severities := []domain.Severity{
		domain.NORMAL_SEVERITY,
		domain.MILD,
		domain.MODERATE,
		domain.MODERATELY_SEVERE,
		domain.SEVERE,
		domain.VERY_SEVERE,
	}
	for _, severity := range severities {
		counts[distributionKey(string(severity))] = 0
	}
	return counts
}

// distributionKey turns a display value like "Moderately Severe" into
// its summary key form "moderately_severe".
func distributionKey(value string) string {
	return strings.ReplaceAll(strings.ToLower(value), " ", "_")
}

func ratePercent(part, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
