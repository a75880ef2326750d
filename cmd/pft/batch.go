package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/pft-interp-server/internal/batch"
	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/history"
	"github.com/pft-interp-server/internal/service"
)

var cmdBatch = &cli.Command{
	Name:      "batch",
	Usage:     "Interpret a batch of spirometry documents (JSON array or JSONL)",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write results to a file instead of stdout",
		},
		&cli.IntFlag{
			Name:  "workers",
			Value: 4,
			Usage: "concurrent interpretation workers",
		},
		&cli.StringFlag{
			Name:    "history-db",
			Usage:   "SQLite file to record successful interpretations in",
			Sources: cli.EnvVars("PFT_HISTORY_DB"),
		},
		&cli.BoolFlag{
			Name:  "summary-only",
			Usage: "print the batch summary without per-record results",
		},
	},
	Action: runBatch,
}

func runBatch(ctx context.Context, cmd *cli.Command) error {
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

	interpreter := service.NewInterpreterService(logger)
	parser := service.NewRecordParser(logger)
	processor := batch.NewProcessor(logger, interpreter, parser, nil, int(cmd.Int("workers")))

	progress := func(completed, total int) {
		fmt.Fprintf(os.Stderr, "\rInterpreted %d/%d records", completed, total)
	}
	result, err := processor.Process(ctx, records, progress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if dbPath := cmd.String("history-db"); dbPath != "" {
		if err := saveBatchHistory(ctx, logger, dbPath, records, result); err != nil {
			return err
		}
	}

	var output []byte
	if cmd.Bool("summary-only") {
		output, err = json.MarshalIndent(result.Summary, "", "  ")
	} else {
		output, err = json.MarshalIndent(result, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode batch result: %w", err)
	}

	return writeOutput(cmd, output)
}

// saveBatchHistory records successful outcomes in a local SQLite store so
// CLI runs and the MCP server share one audit trail.
func saveBatchHistory(ctx context.Context, logger *logrus.Logger, dbPath string, records []batch.Record, result *batch.Result) error {
	store, err := history.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	saved := 0
	for _, outcome := range result.Outcomes {
		if outcome.Status != batch.StatusSuccess || outcome.Interpretation == nil {
			continue
		}

		record := records[outcome.Index]
		entry := &domain.InterpretationRecord{
			ID:               uuid.NewString(),
			PatientID:        record.PatientID,
			Source:           "cli",
			Demographics:     record.Demographics,
			Results:          record.PFTResults,
			Interpretation:   *outcome.Interpretation,
			ProcessingTimeMS: int(outcome.ProcessingTimeMS),
		}
		if err := store.Save(ctx, entry); err != nil {
			logger.WithFields(logrus.Fields{
				"patient_id": record.PatientID,
				"error":      err,
			}).Warn("Failed to save interpretation to history")
			continue
		}
		saved++
	}

	logger.WithFields(logrus.Fields{
		"database": dbPath,
		"saved":    saved,
	}).Info("Batch history recorded")
	return nil
}
