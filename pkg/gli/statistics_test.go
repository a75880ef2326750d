package gli

import (
	"math"
	"testing"

	"github.com/pft-interp-server/internal/domain"
)

func TestCV(t *testing.T) {
	tests := []struct {
		name  string
		param Param
		age   int
		want  float64
	}{
		{"FEV1 adult base", FEV1, 30, 0.12},
		{"FVC adult base", FVC, 30, 0.11},
		{"FEV1 child under 10", FEV1, 9, 0.16},
		{"FEV1 adolescent", FEV1, 19, 0.14},
		{"FEV1 band boundary at 10", FEV1, 10, 0.14},
		{"FEV1 band boundary at 20", FEV1, 20, 0.12},
		{"FEV1 band boundary at 60", FEV1, 60, 0.12},
		{"FEV1 senior", FEV1, 61, 0.17},
		{"FVC senior", FVC, 65, 0.16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CV(tt.param, tt.age)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CV(%s, %d) = %v, want %v", tt.param, tt.age, got, tt.want)
			}
		})
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		name      string
		measured  float64
		predicted float64
		cv        float64
		want      float64
	}{
		{"At predicted", 2.5, 2.5, 0.12, 0},
		{"Above predicted", 3.0, 2.5, 0.1, 2.0},
		{"Below predicted", 2.0, 2.5, 0.1, -2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZScore(tt.measured, tt.predicted, tt.cv)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ZScore(%v, %v, %v) = %v, want %v", tt.measured, tt.predicted, tt.cv, got, tt.want)
			}
		})
	}
}

func TestRatioZScore(t *testing.T) {
	tests := []struct {
		name            string
		measuredPercent float64
		predictedRatio  float64
		want            float64
	}{
		{"At predicted", 75, 0.75, 0},
		{"Below predicted", 64, 0.75, -1.5714285714},
		{"Above predicted", 80, 0.75, 0.7142857143},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RatioZScore(tt.measuredPercent, tt.predictedRatio)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RatioZScore(%v, %v) = %v, want %v", tt.measuredPercent, tt.predictedRatio, got, tt.want)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name string
		z    float64
		want float64
	}{
		{"Center", 0, 36.41},
		{"One SD above", 1, 84.13},
		{"One SD below", -1, 15.87},
		{"LLN boundary", -1.645, 17.0410},
		{"Two SD below", -2, 22.51},
		{"Two SD above clamps", 2, 99.9},
		{"Low tail", -2.5, 0.3},
		{"High tail", 2.5, 99.7},
		{"Low tail edge", -3, 0.3},
		{"High tail edge", 3, 99.7},
		{"Below minus three", -3.01, 0.1},
		{"Above plus three", 3.01, 99.9},
		{"Far below", -10, 0.1},
		{"Far above", 10, 99.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.z)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v) = %v, want %v", tt.z, got, tt.want)
			}
		})
	}
}

func TestPercentileBounds(t *testing.T) {
	for z := -6.0; z <= 6.0; z += 0.25 {
		got := Percentile(z)
		if got < 0.1 || got > 99.9 {
			t.Errorf("Percentile(%v) = %v, outside [0.1, 99.9]", z, got)
		}
	}
}

func TestZScores(t *testing.T) {
	phase := domain.TestPhaseResult{
		FVC:          domain.Measurement{Liters: 3.5, PercentPredicted: 90},
		FEV1:         domain.Measurement{Liters: 2.8, PercentPredicted: 85},
		FEV1FVCRatio: domain.RatioMeasurement{Value: 80},
	}
	predicted := domain.PredictedValues{FEV1: 2.8, FVC: 3.5, Ratio: 0.8}

	got := ZScores(phase, predicted, 30)

	if math.Abs(got.FEV1) > 1e-9 {
		t.Errorf("FEV1 z-score = %v, want 0", got.FEV1)
	}
	if math.Abs(got.FVC) > 1e-9 {
		t.Errorf("FVC z-score = %v, want 0", got.FVC)
	}
	if math.Abs(got.Ratio) > 1e-9 {
		t.Errorf("ratio z-score = %v, want 0", got.Ratio)
	}
}

func TestPercentiles(t *testing.T) {
	z := domain.ZScoreSet{FEV1: 1, FVC: -1, Ratio: -10}

	got := Percentiles(z)

	if math.Abs(got.FEV1-84.13) > 0.001 {
		t.Errorf("FEV1 percentile = %v, want 84.13", got.FEV1)
	}
	if math.Abs(got.FVC-15.87) > 0.001 {
		t.Errorf("FVC percentile = %v, want 15.87", got.FVC)
	}
	if math.Abs(got.Ratio-0.1) > 0.001 {
		t.Errorf("ratio percentile = %v, want 0.1", got.Ratio)
	}
}

func TestBelowLLN(t *testing.T) {
	tests := []struct {
		name string
		z    float64
		want bool
	}{
		{"Exactly at LLN", -1.645, false},
		{"Just below LLN", -1.6451, true},
		{"Just above LLN", -1.644, false},
		{"Well below", -3, true},
		{"Zero", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BelowLLN(tt.z); got != tt.want {
				t.Errorf("BelowLLN(%v) = %v, want %v", tt.z, got, tt.want)
			}
		})
	}
}

func TestNearLLN(t *testing.T) {
	tests := []struct {
		name string
		z    float64
		want bool
	}{
		{"At LLN", -1.645, true},
		{"Just inside lower edge", -1.9449, true},
		{"Past lower edge", -1.9451, false},
		{"Just inside upper edge", -1.3451, true},
		{"Past upper edge", -1.3449, false},
		{"Zero", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearLLN(tt.z, 0.3); got != tt.want {
				t.Errorf("NearLLN(%v, 0.3) = %v, want %v", tt.z, got, tt.want)
			}
		})
	}
}
