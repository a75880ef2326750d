// Package gli implements the reference value model and statistical helpers
// behind spirometry interpretation. Predicted FEV1 and FVC follow a
// log-linear regression with sex specific coefficients and a piecewise age
// spline:
//
//	predicted = exp(intercept + b*ln(height_cm/100) + c*ln(age) + spline(age))
//
// The coefficient tables cover a single reference population and are fixed
// at build time.
package gli

import (
	"errors"
	"fmt"
	"math"

	"github.com/pft-interp-server/internal/domain"
)

// Param identifies a spirometric measurement with its own regression row.
type Param string

const (
	FEV1 Param = "fev1"
	FVC  Param = "fvc"
)

// ErrOutOfDomain reports inputs outside the mathematical domain of the
// regression. The logarithm requires positive age and height.
var ErrOutOfDomain = errors.New("age and height must be positive")

// Coefficients is one row of the regression table.
type Coefficients struct {
	Intercept float64
	LnHeight  float64
	LnAge     float64
}

var referenceCoefficients = map[domain.Sex]map[Param]Coefficients{
	domain.MALE: {
		FEV1: {Intercept: -7.9776, LnHeight: 1.8962, LnAge: -0.1847},
		FVC:  {Intercept: -8.2996, LnHeight: 2.0042, LnAge: -0.1735},
	},
	domain.FEMALE: {
		FEV1: {Intercept: -7.3447, LnHeight: 1.6982, LnAge: -0.1584},
		FVC:  {Intercept: -7.8974, LnHeight: 1.9058, LnAge: -0.1492},
	},
}

// Model computes predicted spirometry values from the built in regression
// tables. The tables are never mutated, a single Model is safe for
// concurrent use.
type Model struct {
	coefficients map[domain.Sex]map[Param]Coefficients
}

// NewModel creates a reference value model.
func NewModel() *Model {
	return &Model{coefficients: referenceCoefficients}
}

// AgeSpline returns the piecewise linear age correction added to the log
// predicted value. The same correction applies to FEV1 and FVC.
func AgeSpline(age int) float64 {
	a := float64(age)
	switch {
	case age < 10:
		return 0.15 - (a-3)*0.02
	case age < 20:
		return -0.05 + (a-10)*0.01
	case age < 40:
		return 0.05 - (a-20)*0.001
	case age < 60:
		return 0.03 - (a-40)*0.002
	default:
		return -0.01 - (a-60)*0.003
	}
}

// PredictValue computes the predicted value in liters for one parameter.
func (m *Model) PredictValue(param Param, sex domain.Sex, age int, heightCM float64) (float64, error) {
	if age <= 0 || heightCM <= 0 {
		return 0, fmt.Errorf("reference prediction for age=%d height_cm=%.1f: %w", age, heightCM, ErrOutOfDomain)
	}

	bySex, ok := m.coefficients[sex]
	if !ok {
		return 0, fmt.Errorf("reference prediction: %w: %q", domain.ErrInvalidSex, sex)
	}
	row, ok := bySex[param]
	if !ok {
		return 0, fmt.Errorf("reference prediction: unknown parameter %q", param)
	}

	logPredicted := row.Intercept +
		row.LnHeight*math.Log(heightCM/100) +
		row.LnAge*math.Log(float64(age)) +
		AgeSpline(age)

	return math.Exp(logPredicted), nil
}

// Predict computes predicted FEV1, FVC and their ratio for one patient.
func (m *Model) Predict(age int, heightCM float64, sex domain.Sex) (domain.PredictedValues, error) {
	fev1, err := m.PredictValue(FEV1, sex, age, heightCM)
	if err != nil {
		return domain.PredictedValues{}, fmt.Errorf("predicted FEV1: %w", err)
	}
	fvc, err := m.PredictValue(FVC, sex, age, heightCM)
	if err != nil {
		return domain.PredictedValues{}, fmt.Errorf("predicted FVC: %w", err)
	}

	return domain.PredictedValues{
		FEV1:  fev1,
		FVC:   fvc,
		Ratio: fev1 / fvc,
	}, nil
}
