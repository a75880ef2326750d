package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/pkg/gli"
)

// RecordParser decodes and validates raw spirometry submissions before
// they reach the interpreter. Validation is itemized, every violated rule
// produces its own error so callers can surface all of them at once.
type RecordParser struct {
	logger *logrus.Logger
}

// NewRecordParser creates a new record parser.
func NewRecordParser(logger *logrus.Logger) *RecordParser {
	return &RecordParser{logger: logger}
}

// ParseRecord decodes a JSON document into a TestRecord, normalizes the
// sex field and validates the result. On validation failure the returned
// error carries every violation joined into one message.
func (p *RecordParser) ParseRecord(data []byte) (*domain.TestRecord, error) {
	var record domain.TestRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, domain.NewProcessingError(domain.ErrInvalidInput, "malformed spirometry document", err.Error(), "")
	}

	NormalizeRecord(&record)

	if errs := p.ValidateTestRecord(&record); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}

		p.logger.WithFields(logrus.Fields{
			"violations": len(errs),
		}).Warn("Spirometry record failed validation")

		return nil, domain.NewProcessingError(domain.ErrValidation, "invalid spirometry data", strings.Join(messages, "; "), "")
	}

	return &record, nil
}

// NormalizeRecord canonicalizes caller-supplied fields in place. Sex is
// case insensitive on the wire but stored upper case.
func NormalizeRecord(record *domain.TestRecord) {
	record.Demographics.Sex = domain.Sex(strings.ToUpper(strings.TrimSpace(string(record.Demographics.Sex))))
	record.PatientID = strings.TrimSpace(record.PatientID)
}

// ValidateTestRecord checks a decoded record against the intake rules and
// returns one error per violation. Volume and ratio consistency rules
// apply to the pre-bronchodilator phase, mirroring how the interpreter
// consumes the record.
func (p *RecordParser) ValidateTestRecord(record *domain.TestRecord) []error {
	var errs []error

	demo := record.Demographics
	if !gli.AgeInRange(demo.Age) {
		errs = append(errs, domain.NewValidationError("demographics.age",
			fmt.Sprintf("age %d outside valid range (%d-%d)", demo.Age, gli.MinAge, gli.MaxAge), demo.Age))
	}
	if !gli.HeightInRange(demo.HeightCM) {
		errs = append(errs, domain.NewValidationError("demographics.height_cm",
			fmt.Sprintf("height %.1fcm outside valid range (%.0f-%.0f)", demo.HeightCM, gli.MinHeightCM, gli.MaxHeightCM), demo.HeightCM))
	}
	if !demo.Sex.IsValid() {
		errs = append(errs, domain.NewValidationError("demographics.sex",
			fmt.Sprintf("invalid sex value: %q (should be M or F)", string(demo.Sex)), string(demo.Sex)))
	}

	pre := record.PFTResults.PreBronchodilator
	if pre == (domain.TestPhaseResult{}) {
		errs = append(errs, domain.NewValidationError("pft_results.pre_bronchodilator",
			"missing pre-bronchodilator measurements", nil))
	} else {
		if pre.FEV1.Liters > pre.FVC.Liters {
			errs = append(errs, domain.NewValidationError("pft_results.pre_bronchodilator",
				"FEV1 cannot be greater than FVC", pre.FEV1.Liters))
		}
		if pre.FEV1.Liters <= gli.MinVolumeLiters || pre.FVC.Liters <= gli.MinVolumeLiters {
			errs = append(errs, domain.NewValidationError("pft_results.pre_bronchodilator",
				"extremely low lung function values - please verify", nil))
		}
		if pre.FEV1.Liters > gli.MaxFEV1Liters || pre.FVC.Liters > gli.MaxFVCLiters {
			errs = append(errs, domain.NewValidationError("pft_results.pre_bronchodilator",
				"extremely high lung function values - please verify", nil))
		}
	}

	if record.PFTResults.PostBronchodilator == (domain.TestPhaseResult{}) {
		errs = append(errs, domain.NewValidationError("pft_results.post_bronchodilator",
			"missing post-bronchodilator measurements", nil))
	}

	return errs
}
