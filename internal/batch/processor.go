// Package batch runs spirometry interpretations over collections of
// records using a bounded worker pool. It accepts JSON array, single
// object or JSON Lines input, produces one outcome per record in input
// order and aggregates a batch summary with pattern, severity and
// reversibility distributions.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/monitoring"
)

// Outcome status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const maxJSONLineBytes = 4 * 1024 * 1024

// Record is one entry in a batch input file. FileName is optional and
// labels per-record outputs when present.
type Record struct {
	FileName string `json:"file_name,omitempty"`
	domain.TestRecord
}

// Outcome is the result of interpreting one batch record. Index refers
// to the record's position in the input.
type Outcome struct {
	Index            int                    `json:"index"`
	FileName         string                 `json:"file_name,omitempty"`
	Status           string                 `json:"status"`
	Interpretation   *domain.Interpretation `json:"interpretation,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
}

// Result aggregates a completed batch run.
type Result struct {
	Outcomes  []Outcome     `json:"outcomes"`
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
	Summary   *Summary      `json:"summary"`
}

// ProgressFunc receives progress updates during a batch run. It may be
// invoked concurrently from worker goroutines.
type ProgressFunc func(completed, total int)

// Processor fans batch records out to a pool of interpretation workers.
type Processor struct {
	logger      *logrus.Logger
	interpreter domain.Interpreter
	validator   domain.RecordValidator
	metrics     *monitoring.Metrics
	workers     int
}

// NewProcessor creates a batch processor. If workers <= 0 the pool size
// defaults to runtime.NumCPU(). The metrics instance may be nil.
func NewProcessor(logger *logrus.Logger, interpreter domain.Interpreter, validator domain.RecordValidator, metrics *monitoring.Metrics, workers int) *Processor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Processor{
		logger:      logger,
		interpreter: interpreter,
		validator:   validator,
		metrics:     metrics,
		workers:     workers,
	}
}

// Workers returns the configured pool size.
func (p *Processor) Workers() int {
	return p.workers
}

// Process interprets every record and returns per-record outcomes in
// input order plus an aggregated summary. Validation failures and
// interpretation errors become error outcomes; they never abort the
// batch. If ctx is canceled mid-run the remaining records are marked as
// errors and the partial result is returned alongside ctx.Err().
func (p *Processor) Process(ctx context.Context, records []Record, progress ProgressFunc) (*Result, error) {
	startTime := time.Now()

	p.logger.WithFields(logrus.Fields{
		"records": len(records),
		"workers": p.workers,
	}).Info("Starting batch processing")

	outcomes := make([]Outcome, len(records))
	jobs := make(chan int)
	var completed atomic.Uint64
	var wg sync.WaitGroup

	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = p.interpretOne(idx, &records[idx])
				done := completed.Add(1)
				if progress != nil {
					progress(int(done), len(records))
				}
			}
		}()
	}

	var canceled bool
dispatch:
	for idx := range records {
		// Checked separately first: the combined select below picks at
		// random when a worker is ready and the context is already done.
		select {
		case <-ctx.Done():
			canceled = true
			break dispatch
		default:
		}

		select {
		case <-ctx.Done():
			canceled = true
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	if canceled {
		for idx := range outcomes {
			if outcomes[idx].Status == "" {
				outcomes[idx] = Outcome{
					Index:    idx,
					FileName: records[idx].FileName,
					Status:   StatusError,
					Error:    "batch processing canceled",
				}
			}
		}
	}

	result := &Result{
		Outcomes: outcomes,
		Duration: time.Since(startTime),
	}
	for _, outcome := range outcomes {
		if outcome.Status == StatusSuccess {
			result.Processed++
		} else {
			result.Errors++
		}
	}
	result.Summary = buildSummary(records, outcomes, result.Processed, result.Errors)

	p.logger.WithFields(logrus.Fields{
		"processed":   result.Processed,
		"errors":      result.Errors,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Batch processing complete")

	if canceled {
		return result, ctx.Err()
	}
	return result, nil
}

func (p *Processor) interpretOne(idx int, record *Record) Outcome {
	start := time.Now()

	outcome := Outcome{
		Index:    idx,
		FileName: record.FileName,
	}

	if p.validator != nil {
		if errs := p.validator.ValidateTestRecord(&record.TestRecord); len(errs) > 0 {
			messages := make([]string, len(errs))
			for i, err := range errs {
				messages[i] = err.Error()
			}
			outcome.Status = StatusError
			outcome.Error = fmt.Sprintf("invalid spirometry data: %s", strings.Join(messages, "; "))
			outcome.ProcessingTimeMS = time.Since(start).Milliseconds()

			if p.metrics != nil {
				p.metrics.RecordError()
			}
			p.logger.WithFields(logrus.Fields{
				"record": idx + 1,
				"error":  outcome.Error,
			}).Warn("Batch record failed validation")
			return outcome
		}
	}

	interpretation, err := p.interpreter.Interpret(&record.TestRecord)
	if err != nil {
		outcome.Status = StatusError
		outcome.Error = err.Error()
		outcome.ProcessingTimeMS = time.Since(start).Milliseconds()

		if p.metrics != nil {
			p.metrics.RecordError()
		}
		p.logger.WithFields(logrus.Fields{
			"record": idx + 1,
			"error":  err.Error(),
		}).Warn("Batch record failed interpretation")
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.Interpretation = interpretation
	outcome.ProcessingTimeMS = time.Since(start).Milliseconds()

	if p.metrics != nil {
		p.metrics.RecordInterpretation(interpretation.Pattern, time.Since(start))
	}
	return outcome
}

// LoadRecords reads batch input as a JSON array, a single JSON object or
// JSON Lines. The format is detected from the content rather than the
// file name.
func LoadRecords(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch input: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("batch input is empty")
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse batch array: %w", err)
		}
		return records, nil
	}

	// A lone object parses whole; anything else with object lines is
	// treated as JSON Lines.
	var single Record
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return []Record{single}, nil
	}
	return parseJSONLines(trimmed)
}

func parseJSONLines(data []byte) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", lineNo, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan batch input: %w", err)
	}
	return records, nil
}
