package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/service"
	"github.com/pft-interp-server/pkg/gli"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type interpretArgs struct {
	Record        domain.TestRecord `json:"record" jsonschema:"complete spirometry test: patient demographics plus pre and post bronchodilator measurements"`
	IncludeReport bool              `json:"include_report,omitempty" jsonschema:"attach the full clinical report to the result"`
}

type recordArgs struct {
	Record domain.TestRecord `json:"record" jsonschema:"complete spirometry test: patient demographics plus pre and post bronchodilator measurements"`
}

type reportArgs struct {
	Record     domain.TestRecord `json:"record" jsonschema:"complete spirometry test: patient demographics plus pre and post bronchodilator measurements"`
	Format     string            `json:"format,omitempty" jsonschema:"report format: json (default) or text"`
	IncludeRaw bool              `json:"include_raw,omitempty" jsonschema:"echo the raw input measurements in the report"`
}

type referenceArgs struct {
	Age      int     `json:"age" jsonschema:"patient age in years"`
	Sex      string  `json:"sex" jsonschema:"patient sex, M or F"`
	HeightCM float64 `json:"height_cm" jsonschema:"standing height in centimeters"`
}

type historyArgs struct {
	PatientID string `json:"patient_id,omitempty" jsonschema:"restrict to one patient"`
	Pattern   string `json:"pattern,omitempty" jsonschema:"restrict to a ventilatory pattern: Normal, Obstructive, Restrictive or Mixed"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum records to return, default 20"`
}

type exportArgs struct {
	Filename string `json:"filename,omitempty" jsonschema:"export file name inside the export directory; defaults to a timestamped name"`
}

type interpretPayload struct {
	Interpretation *domain.Interpretation `json:"interpretation"`
	Report         interface{}            `json:"report,omitempty"`
	Cached         bool                   `json:"cached"`
}

type validationPayload struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

type historyPayload struct {
	Total   int64                          `json:"total"`
	Records []*domain.InterpretationRecord `json:"records"`
}

type exportPayload struct {
	File    string `json:"file"`
	Records int64  `json:"records"`
}

// registerTools registers all spirometry tools with the MCP SDK. Input
// schemas are derived from the argument struct tags.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "interpret_spirometry",
		Description: "Interpret a pre/post bronchodilator spirometry test: ventilatory pattern, severity grade, bronchodilator reversibility and confidence score.",
	}, s.interpretSpirometry)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "validate_spirometry",
		Description: "Check a spirometry test record against the intake rules without interpreting it. Returns the itemized violations.",
	}, s.validateSpirometry)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "spirometry_report",
		Description: "Generate the full clinical report for a spirometry test: summary, tabulated results, clinical impression, recommendations and quality assessment.",
	}, s.spirometryReport)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reference_values",
		Description: "Predicted FVC, FEV1 and FEV1/FVC ratio for a demographic profile (age, sex, height).",
	}, s.referenceValues)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "interpretation_history",
		Description: "List previously interpreted tests from the local history, newest first. Filter by patient or ventilatory pattern.",
	}, s.interpretationHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_history",
		Description: "Export the full interpretation history to a JSON file in the export directory.",
	}, s.exportHistory)

	s.logger.WithField("tool_count", 6).Info("Registered MCP tools")
}

func (s *Server) interpretSpirometry(ctx context.Context, req *mcp.CallToolRequest, args interpretArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "interpret_spirometry").Debug("Tool invoked")

	record := args.Record
	service.NormalizeRecord(&record)
	if errs := s.parser.ValidateTestRecord(&record); len(errs) > 0 {
		return errorResult(violationText(errs)), nil, nil
	}

	start := time.Now()

	interpretation, cached := s.results.Get(ctx, &record)
	if interpretation == nil {
		var err error
		interpretation, err = s.interpreter.Interpret(&record)
		if err != nil {
			return nil, nil, fmt.Errorf("interpretation failed: %w", err)
		}
		s.results.Set(ctx, &record, interpretation)
	}

	payload := interpretPayload{
		Interpretation: interpretation,
		Cached:         cached,
	}
	if args.IncludeReport {
		rep, err := s.reports.Comprehensive(&record, false)
		if err != nil {
			return nil, nil, fmt.Errorf("report generation failed: %w", err)
		}
		payload.Report = rep
	}

	s.recordHistory(ctx, &record, interpretation, start)
	return jsonResult(payload)
}

func (s *Server) validateSpirometry(ctx context.Context, req *mcp.CallToolRequest, args recordArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "validate_spirometry").Debug("Tool invoked")

	record := args.Record
	service.NormalizeRecord(&record)

	payload := validationPayload{Valid: true}
	for _, err := range s.parser.ValidateTestRecord(&record) {
		payload.Valid = false
		payload.Violations = append(payload.Violations, err.Error())
	}
	return jsonResult(payload)
}

func (s *Server) spirometryReport(ctx context.Context, req *mcp.CallToolRequest, args reportArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "spirometry_report").Debug("Tool invoked")

	record := args.Record
	service.NormalizeRecord(&record)
	if errs := s.parser.ValidateTestRecord(&record); len(errs) > 0 {
		return errorResult(violationText(errs)), nil, nil
	}

	switch args.Format {
	case "", "json":
		rep, err := s.reports.Comprehensive(&record, args.IncludeRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("report generation failed: %w", err)
		}
		return jsonResult(rep)
	case "text":
		text, err := s.reports.Text(&record)
		if err != nil {
			return nil, nil, fmt.Errorf("report generation failed: %w", err)
		}
		return textResult(text), nil, nil
	default:
		return errorResult(fmt.Sprintf("unsupported format %q: use json or text", args.Format)), nil, nil
	}
}

func (s *Server) referenceValues(ctx context.Context, req *mcp.CallToolRequest, args referenceArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "reference_values").Debug("Tool invoked")

	sex := domain.Sex(strings.ToUpper(strings.TrimSpace(args.Sex)))
	if !sex.IsValid() {
		return errorResult("sex must be M or F"), nil, nil
	}
	if !gli.AgeInRange(args.Age) {
		return errorResult(fmt.Sprintf("age %d is outside the supported range", args.Age)), nil, nil
	}
	if !gli.HeightInRange(args.HeightCM) {
		return errorResult(fmt.Sprintf("height %.1f cm is outside the supported range", args.HeightCM)), nil, nil
	}

	predicted, err := s.reference.Predict(args.Age, args.HeightCM, sex)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	return jsonResult(map[string]interface{}{
		"demographics": map[string]interface{}{
			"age":       args.Age,
			"sex":       sex,
			"height_cm": args.HeightCM,
		},
		"predicted_values":   predicted,
		"reference_equation": "GLI-2012",
	})
}

func (s *Server) interpretationHistory(ctx context.Context, req *mcp.CallToolRequest, args historyArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "interpretation_history").Debug("Tool invoked")

	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	filter := domain.RecordFilter{
		PatientID: strings.TrimSpace(args.PatientID),
		Limit:     limit,
	}
	if args.Pattern != "" {
		pattern := domain.Pattern(args.Pattern)
		if !pattern.IsValid() {
			return errorResult(fmt.Sprintf("unknown pattern %q", args.Pattern)), nil, nil
		}
		filter.Pattern = pattern
	}

	records, err := s.history.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("history lookup failed: %w", err)
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("history lookup failed: %w", err)
	}

	return jsonResult(historyPayload{Total: total, Records: records})
}

func (s *Server) exportHistory(ctx context.Context, req *mcp.CallToolRequest, args exportArgs) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "export_history").Debug("Tool invoked")

	name := strings.TrimSpace(args.Filename)
	if name == "" {
		name = fmt.Sprintf("history-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	if filepath.Base(name) != name {
		return errorResult("filename must not contain path separators"), nil, nil
	}

	if err := s.config.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("export directory unavailable: %w", err)
	}

	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("history lookup failed: %w", err)
	}

	path := filepath.Join(s.config.ExportDir(), name)
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := s.history.ExportJSON(ctx, file); err != nil {
		return nil, nil, fmt.Errorf("export failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file":    path,
		"records": total,
	}).Info("Exported interpretation history")
	return jsonResult(exportPayload{File: path, Records: total})
}

// recordHistory stores the interpretation for later retrieval. Storage
// failures are logged and never fail the tool call.
func (s *Server) recordHistory(ctx context.Context, record *domain.TestRecord, interpretation *domain.Interpretation, start time.Time) {
	entry := &domain.InterpretationRecord{
		ID:               uuid.NewString(),
		PatientID:        record.PatientID,
		Source:           "mcp",
		Demographics:     record.Demographics,
		Results:          record.PFTResults,
		Interpretation:   *interpretation,
		ProcessingTimeMS: int(time.Since(start).Milliseconds()),
	}

	if err := s.history.Save(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"record_id": entry.ID,
			"error":     err,
		}).Warn("Failed to record interpretation history")
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}

func violationText(errs []error) string {
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("Invalid PFT data: %s", strings.Join(messages, "; "))
}
