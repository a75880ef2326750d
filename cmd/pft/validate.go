package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pft-interp-server/internal/service"
	"github.com/pft-interp-server/internal/validation"
)

var cmdValidate = &cli.Command{
	Name:      "validate",
	Usage:     "Score the engine against an expert-labeled dataset",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the report to a file instead of stdout",
		},
		&cli.StringFlag{
			Name:  "format",
			Value: "text",
			Usage: "report format (text or json)",
		},
	},
	Action: runValidate,
}

func runValidate(ctx context.Context, cmd *cli.Command) error {
	path, err := inputPath(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset file: %w", err)
	}
	records, err := validation.LoadDataset(file)
	file.Close()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s contains no records", path)
	}

	svc := validation.NewService(logger, service.NewInterpreterService(logger))
	report := svc.ValidateDataset(records)

	var output []byte
	switch format := cmd.String("format"); format {
	case "text":
		output = []byte(report.Render())
	case "json":
		output, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode validation report: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q: use text or json", format)
	}

	return writeOutput(cmd, output)
}
