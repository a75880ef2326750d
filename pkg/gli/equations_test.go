package gli

import (
	"errors"
	"math"
	"testing"

	"github.com/pft-interp-server/internal/domain"
)

func TestAgeSpline(t *testing.T) {
	tests := []struct {
		name string
		age  int
		want float64
	}{
		{"Early childhood", 3, 0.15},
		{"Late childhood", 9, 0.03},
		{"Band boundary at 10", 10, -0.05},
		{"Adolescent", 15, 0.0},
		{"Band boundary at 20", 20, 0.05},
		{"Mid adult", 30, 0.04},
		{"Band boundary at 40", 40, 0.03},
		{"Older adult", 50, 0.01},
		{"Band boundary at 60", 60, -0.01},
		{"Senior", 65, -0.025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AgeSpline(tt.age)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AgeSpline(%d) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestReferenceCoefficients(t *testing.T) {
	tests := []struct {
		name  string
		sex   domain.Sex
		param Param
		want  Coefficients
	}{
		{"Male FEV1", domain.MALE, FEV1, Coefficients{-7.9776, 1.8962, -0.1847}},
		{"Male FVC", domain.MALE, FVC, Coefficients{-8.2996, 2.0042, -0.1735}},
		{"Female FEV1", domain.FEMALE, FEV1, Coefficients{-7.3447, 1.6982, -0.1584}},
		{"Female FVC", domain.FEMALE, FVC, Coefficients{-7.8974, 1.9058, -0.1492}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := referenceCoefficients[tt.sex][tt.param]
			if got != tt.want {
				t.Errorf("coefficients[%s][%s] = %+v, want %+v", tt.sex, tt.param, got, tt.want)
			}
		})
	}
}

func TestPredictValueDomainErrors(t *testing.T) {
	model := NewModel()

	tests := []struct {
		name     string
		param    Param
		sex      domain.Sex
		age      int
		heightCM float64
		wantErr  error
	}{
		{"Zero age", FEV1, domain.MALE, 0, 175, ErrOutOfDomain},
		{"Negative age", FEV1, domain.MALE, -5, 175, ErrOutOfDomain},
		{"Zero height", FVC, domain.FEMALE, 40, 0, ErrOutOfDomain},
		{"Negative height", FVC, domain.FEMALE, 40, -160, ErrOutOfDomain},
		{"Unknown sex", FEV1, domain.Sex("X"), 40, 175, domain.ErrInvalidSex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.PredictValue(tt.param, tt.sex, tt.age, tt.heightCM)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PredictValue() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredict(t *testing.T) {
	model := NewModel()

	predicted, err := model.Predict(65, 175, domain.MALE)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if predicted.FEV1 <= 0 || predicted.FVC <= 0 {
		t.Errorf("Predict() returned non-positive values: %+v", predicted)
	}
	if math.Abs(predicted.Ratio-predicted.FEV1/predicted.FVC) > 1e-12 {
		t.Errorf("Predict() ratio %v does not equal FEV1/FVC %v", predicted.Ratio, predicted.FEV1/predicted.FVC)
	}

	// Pinned regression output for the 65 year old male at 175cm. The
	// predicted ratio drives the obstruction decision downstream.
	if math.Abs(predicted.Ratio-1.2396) > 0.001 {
		t.Errorf("Predict() ratio = %v, want 1.2396 within 0.001", predicted.Ratio)
	}
}

func TestPredictDeterministic(t *testing.T) {
	model := NewModel()

	first, err := model.Predict(42, 168, domain.FEMALE)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	second, err := model.Predict(42, 168, domain.FEMALE)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if first != second {
		t.Errorf("Predict() not deterministic: %+v vs %+v", first, second)
	}
}

func TestPredictSexesDiffer(t *testing.T) {
	model := NewModel()

	male, err := model.Predict(40, 170, domain.MALE)
	if err != nil {
		t.Fatalf("Predict(male) error = %v", err)
	}
	female, err := model.Predict(40, 170, domain.FEMALE)
	if err != nil {
		t.Fatalf("Predict(female) error = %v", err)
	}

	if male.FEV1 == female.FEV1 || male.FVC == female.FVC {
		t.Errorf("male and female predictions should differ: male=%+v female=%+v", male, female)
	}
}

func TestPredictError(t *testing.T) {
	model := NewModel()

	if _, err := model.Predict(0, 175, domain.MALE); !errors.Is(err, ErrOutOfDomain) {
		t.Errorf("Predict(age=0) error = %v, want %v", err, ErrOutOfDomain)
	}
}
