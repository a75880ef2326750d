package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pft-interp-server/internal/batch"
	"github.com/pft-interp-server/internal/quality"
	"github.com/pft-interp-server/internal/service"
)

var cmdQuality = &cli.Command{
	Name:      "quality",
	Usage:     "Assess data quality across a batch of spirometry documents",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the assessment to a file instead of stdout",
		},
	},
	Action: runQuality,
}

type recordQuality struct {
	Index      int                `json:"index"`
	FileName   string             `json:"file_name,omitempty"`
	PatientID  string             `json:"patient_id,omitempty"`
	Indicators quality.Indicators `json:"indicators"`
}

type qualityAssessment struct {
	Records []recordQuality      `json:"records"`
	Batch   quality.BatchQuality `json:"batch"`
}

func runQuality(ctx context.Context, cmd *cli.Command) error {
	path, err := inputPath(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	records, err := batch.LoadRecords(file)
	file.Close()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s contains no records", path)
	}

	assessor := quality.NewAssessor(logger)
	all := make([]quality.Indicators, 0, len(records))
	perRecord := make([]recordQuality, 0, len(records))

	for i := range records {
		service.NormalizeRecord(&records[i].TestRecord)
		indicators := assessor.Assess(&records[i].TestRecord)
		all = append(all, indicators)
		perRecord = append(perRecord, recordQuality{
			Index:      i,
			FileName:   records[i].FileName,
			PatientID:  records[i].PatientID,
			Indicators: indicators,
		})
	}

	output, err := json.MarshalIndent(qualityAssessment{
		Records: perRecord,
		Batch:   assessor.Aggregate(all),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quality assessment: %w", err)
	}

	return writeOutput(cmd, output)
}
