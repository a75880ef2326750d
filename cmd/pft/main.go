// Command pft is the command line interface to the spirometry
// interpretation engine. It interprets single documents and batches,
// assesses data quality, and scores the engine against expert-labeled
// datasets without requiring a running server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const version = "1.1.0"

func main() {
	app := &cli.Command{
		Name:    "pft",
		Usage:   "Spirometry interpretation toolkit",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "log verbosity (debug, info, warn, error)",
				Sources: cli.EnvVars("PFT_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			cmdSingle,
			cmdBatch,
			cmdQuality,
			cmdValidate,
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the CLI logger. Logs go to stderr so piped command
// output stays machine readable.
func newLogger(cmd *cli.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cmd.String("log-level"))
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

// inputPath returns the single positional file argument.
func inputPath(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one input file, got %d arguments", cmd.Args().Len())
	}
	return cmd.Args().First(), nil
}

// writeOutput writes result bytes to --output when set, stdout otherwise.
func writeOutput(cmd *cli.Command, data []byte) error {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}

	_, err := os.Stdout.Write(data)
	return err
}
