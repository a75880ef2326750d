package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
)

const validRecordJSON = `{
	"patient_id": "PT-1001",
	"demographics": {"age": 65, "sex": "m", "height_cm": 175, "weight_kg": 88},
	"pft_results": {
		"pre_bronchodilator": {
			"fvc": {"liters": 3.95, "percent_predicted": 98},
			"fev1": {"liters": 2.53, "percent_predicted": 78},
			"fev1_fvc_ratio": {"value": 64}
		},
		"post_bronchodilator": {
			"fvc": {"liters": 4.15, "percent_predicted": 103},
			"fev1": {"liters": 2.91, "percent_predicted": 90},
			"fev1_fvc_ratio": {"value": 70}
		}
	}
}`

func TestRecordParser_ParseRecord(t *testing.T) {
	parser := NewRecordParser(logrus.New())

	record, err := parser.ParseRecord([]byte(validRecordJSON))
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}

	if record.Demographics.Sex != domain.MALE {
		t.Errorf("sex = %v, want normalized %v", record.Demographics.Sex, domain.MALE)
	}
	if record.Demographics.Age != 65 {
		t.Errorf("age = %d, want 65", record.Demographics.Age)
	}
	if record.PFTResults.PreBronchodilator.FEV1.Liters != 2.53 {
		t.Errorf("pre FEV1 = %v, want 2.53", record.PFTResults.PreBronchodilator.FEV1.Liters)
	}
	if record.PFTResults.PostBronchodilator.FEV1FVCRatio.Value != 70 {
		t.Errorf("post ratio = %v, want 70", record.PFTResults.PostBronchodilator.FEV1FVCRatio.Value)
	}
}

func TestRecordParser_ParseRecordMalformedJSON(t *testing.T) {
	parser := NewRecordParser(logrus.New())

	_, err := parser.ParseRecord([]byte(`{"demographics": `))
	if err == nil {
		t.Fatal("ParseRecord() expected error for malformed JSON")
	}

	var procErr *domain.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("ParseRecord() error type = %T, want *domain.ProcessingError", err)
	}
	if procErr.Code != domain.ErrInvalidInput {
		t.Errorf("error code = %s, want %s", procErr.Code, domain.ErrInvalidInput)
	}
}

func TestRecordParser_ParseRecordAggregatesViolations(t *testing.T) {
	parser := NewRecordParser(logrus.New())

	invalid := `{
		"demographics": {"age": 2, "sex": "X", "height_cm": 90, "weight_kg": 20},
		"pft_results": {
			"pre_bronchodilator": {
				"fvc": {"liters": 3.0, "percent_predicted": 90},
				"fev1": {"liters": 2.4, "percent_predicted": 85},
				"fev1_fvc_ratio": {"value": 80}
			},
			"post_bronchodilator": {
				"fvc": {"liters": 3.0, "percent_predicted": 90},
				"fev1": {"liters": 2.4, "percent_predicted": 85},
				"fev1_fvc_ratio": {"value": 80}
			}
		}
	}`

	_, err := parser.ParseRecord([]byte(invalid))
	if err == nil {
		t.Fatal("ParseRecord() expected validation error")
	}

	var procErr *domain.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("ParseRecord() error type = %T, want *domain.ProcessingError", err)
	}
	if procErr.Code != domain.ErrValidation {
		t.Errorf("error code = %s, want %s", procErr.Code, domain.ErrValidation)
	}

	for _, fragment := range []string{"age 2", "height 90.0cm", "invalid sex value"} {
		if !strings.Contains(procErr.Details, fragment) {
			t.Errorf("aggregated details missing %q: %s", fragment, procErr.Details)
		}
	}
}

func TestRecordParser_ValidateTestRecord(t *testing.T) {
	parser := NewRecordParser(logrus.New())

	validPhase := domain.TestPhaseResult{
		FVC:          domain.Measurement{Liters: 3.95, PercentPredicted: 98},
		FEV1:         domain.Measurement{Liters: 2.53, PercentPredicted: 78},
		FEV1FVCRatio: domain.RatioMeasurement{Value: 64},
	}

	valid := domain.TestRecord{
		Demographics: domain.Demographics{Age: 65, Sex: domain.MALE, HeightCM: 175, WeightKG: 88},
		PFTResults:   domain.PFTResults{PreBronchodilator: validPhase, PostBronchodilator: validPhase},
	}

	tests := []struct {
		name     string
		mutate   func(*domain.TestRecord)
		wantErrs int
		wantMsg  string
	}{
		{
			name:     "Valid record",
			mutate:   func(r *domain.TestRecord) {},
			wantErrs: 0,
		},
		{
			name:     "Age below range",
			mutate:   func(r *domain.TestRecord) { r.Demographics.Age = 2 },
			wantErrs: 1,
			wantMsg:  "age 2 outside valid range (3-100)",
		},
		{
			name:     "Age above range",
			mutate:   func(r *domain.TestRecord) { r.Demographics.Age = 101 },
			wantErrs: 1,
			wantMsg:  "age 101 outside valid range (3-100)",
		},
		{
			name:     "Height out of range",
			mutate:   func(r *domain.TestRecord) { r.Demographics.HeightCM = 95 },
			wantErrs: 1,
			wantMsg:  "height 95.0cm outside valid range (100-220)",
		},
		{
			name:     "Invalid sex",
			mutate:   func(r *domain.TestRecord) { r.Demographics.Sex = "X" },
			wantErrs: 1,
			wantMsg:  "should be M or F",
		},
		{
			name: "FEV1 greater than FVC",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PreBronchodilator.FEV1.Liters = 4.2
			},
			wantErrs: 1,
			wantMsg:  "FEV1 cannot be greater than FVC",
		},
		{
			name: "Extremely low volumes",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PreBronchodilator.FEV1.Liters = 0.2
			},
			wantErrs: 1,
			wantMsg:  "extremely low lung function values",
		},
		{
			name: "Volume at exclusive lower bound",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PreBronchodilator.FEV1.Liters = 0.3
			},
			wantErrs: 1,
			wantMsg:  "extremely low lung function values",
		},
		{
			name: "Extremely high volumes",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PreBronchodilator.FVC.Liters = 10.5
				r.PFTResults.PreBronchodilator.FEV1.Liters = 7.9
			},
			wantErrs: 1,
			wantMsg:  "extremely high lung function values",
		},
		{
			name: "Missing pre-bronchodilator phase",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PreBronchodilator = domain.TestPhaseResult{}
			},
			wantErrs: 1,
			wantMsg:  "missing pre-bronchodilator measurements",
		},
		{
			name: "Missing post-bronchodilator phase",
			mutate: func(r *domain.TestRecord) {
				r.PFTResults.PostBronchodilator = domain.TestPhaseResult{}
			},
			wantErrs: 1,
			wantMsg:  "missing post-bronchodilator measurements",
		},
		{
			name: "Multiple violations reported together",
			mutate: func(r *domain.TestRecord) {
				r.Demographics.Age = 150
				r.Demographics.HeightCM = 90
				r.Demographics.Sex = "Q"
			},
			wantErrs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid
			tt.mutate(&record)

			errs := parser.ValidateTestRecord(&record)
			if len(errs) != tt.wantErrs {
				t.Fatalf("ValidateTestRecord() returned %d errors, want %d: %v", len(errs), tt.wantErrs, errs)
			}
			if tt.wantMsg != "" && len(errs) > 0 {
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.wantMsg) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("ValidateTestRecord() errors %v missing message %q", errs, tt.wantMsg)
				}
			}
		})
	}
}
