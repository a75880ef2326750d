package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/quality"
	"github.com/pft-interp-server/internal/report"
	"github.com/pft-interp-server/internal/service"
)

var cmdSingle = &cli.Command{
	Name:      "single",
	Aliases:   []string{"interpret"},
	Usage:     "Interpret one spirometry JSON document",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the report to a file instead of stdout",
		},
		&cli.StringFlag{
			Name:  "format",
			Value: "json",
			Usage: "report format (json or text)",
		},
		&cli.BoolFlag{
			Name:  "validate-only",
			Usage: "check the document without interpreting it",
		},
		&cli.BoolFlag{
			Name:  "include-raw",
			Usage: "embed the submitted measurements in the JSON report",
		},
	},
	Action: runSingle,
}

func runSingle(ctx context.Context, cmd *cli.Command) error {
	path, err := inputPath(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	parser := service.NewRecordParser(logger)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	record, err := parser.ParseRecord(data)
	if err != nil {
		var procErr *domain.ProcessingError
		if errors.As(err, &procErr) && procErr.Details != "" {
			return fmt.Errorf("%s: %s", procErr.Message, procErr.Details)
		}
		return err
	}

	if cmd.Bool("validate-only") {
		fmt.Printf("%s: valid spirometry document\n", path)
		return nil
	}

	interpreter := service.NewInterpreterService(logger)
	reports := report.NewGenerator(logger, interpreter, quality.NewAssessor(logger))

	var output []byte
	switch format := cmd.String("format"); format {
	case "json":
		output, err = reports.JSON(record, cmd.Bool("include-raw"))
	case "text":
		var text string
		text, err = reports.Text(record)
		output = []byte(text)
	default:
		return fmt.Errorf("unsupported format %q: use json or text", format)
	}
	if err != nil {
		return err
	}

	return writeOutput(cmd, output)
}
