package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/batch"
	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/report"
	"github.com/pft-interp-server/pkg/gli"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// interpretResponse is the JSON API payload for a single interpretation.
type interpretResponse struct {
	Status           string                 `json:"status"`
	Interpretation   *domain.Interpretation `json:"interpretation"`
	Report           *report.Report         `json:"report,omitempty"`
	RecordID         string                 `json:"record_id,omitempty"`
	Cached           bool                   `json:"cached"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
}

// handleInterpret interprets one JSON test record. The full report is
// included unless ?report=false asks for the interpretation alone.
// Identical inputs replay from the cache.
func (s *Server) handleInterpret(c *gin.Context) {
	startTime := time.Now()

	data, err := c.GetRawData()
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, "reading request body failed")
		return
	}

	record, err := s.parser.ParseRecord(data)
	if err != nil {
		s.processingError(c, err)
		return
	}

	includeReport := c.DefaultQuery("report", "true") != "false"
	includeRaw := c.Query("raw") == "true"

	var interpretation *domain.Interpretation
	var cached bool

	if s.cache != nil {
		if hit, ok := s.cache.Get(c.Request.Context(), record); ok {
			interpretation = hit
			cached = true
		}
	}

	if interpretation == nil {
		interpretation, err = s.interpreter.Interpret(record)
		if err != nil {
			s.processingError(c, err)
			return
		}
		s.metrics.RecordInterpretation(interpretation.Pattern, time.Since(startTime))

		if s.cache != nil {
			s.cache.Set(c.Request.Context(), record, interpretation)
		}
	}

	response := interpretResponse{
		Status:         "success",
		Interpretation: interpretation,
		Cached:         cached,
	}

	if includeReport {
		rep, err := s.reports.Comprehensive(record, includeRaw)
		if err != nil {
			s.processingError(c, err)
			return
		}
		response.Report = rep
	}

	if s.records != nil {
		response.RecordID = s.persistRecord(c.Request.Context(), record, interpretation, startTime)
	}

	response.ProcessingTimeMS = time.Since(startTime).Milliseconds()
	c.JSON(http.StatusOK, response)
}

// persistRecord stores the interpretation for later retrieval. Storage
// failures are logged and never fail the request.
func (s *Server) persistRecord(ctx context.Context, record *domain.TestRecord, interpretation *domain.Interpretation, startTime time.Time) string {
	stored := &domain.InterpretationRecord{
		ID:               uuid.NewString(),
		PatientID:        record.PatientID,
		Source:           "api",
		Demographics:     record.Demographics,
		Results:          record.PFTResults,
		Interpretation:   *interpretation,
		ProcessingTimeMS: int(time.Since(startTime).Milliseconds()),
	}

	if err := s.records.Save(ctx, stored); err != nil {
		s.logger.WithFields(logrus.Fields{
			"record_id": stored.ID,
			"error":     err.Error(),
		}).Warn("Failed to persist interpretation record")
		return ""
	}
	return stored.ID
}

// handleBatchSubmit accepts a JSON array, single object or JSON Lines
// payload and starts an asynchronous batch job.
func (s *Server) handleBatchSubmit(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, "reading request body failed")
		return
	}

	records, err := batch.LoadRecords(bytes.NewReader(data))
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(records) == 0 {
		s.jsonError(c, http.StatusBadRequest, "batch contains no records")
		return
	}
	if s.maxBatchRecords > 0 && len(records) > s.maxBatchRecords {
		s.jsonError(c, http.StatusRequestEntityTooLarge,
			"batch exceeds maximum of "+strconv.Itoa(s.maxBatchRecords)+" records")
		return
	}

	// The job must outlive this request, so it runs on a background
	// context rather than the request context.
	snapshot := s.batches.Start(context.Background(), records)
	c.JSON(http.StatusAccepted, snapshot)
}

// handleBatchStatus returns the current snapshot of a batch job.
func (s *Server) handleBatchStatus(c *gin.Context) {
	snapshot, ok := s.batches.Get(c.Param("id"))
	if !ok {
		s.jsonError(c, http.StatusNotFound, "batch job not found")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// handleListInterpretations lists stored interpretation records.
func (s *Server) handleListInterpretations(c *gin.Context) {
	if s.records == nil {
		s.jsonError(c, http.StatusServiceUnavailable, "interpretation storage is not configured")
		return
	}

	filter := domain.RecordFilter{
		PatientID: strings.TrimSpace(c.Query("patient_id")),
		Limit:     defaultPageLimit,
	}

	if p := c.Query("pattern"); p != "" {
		pattern := domain.Pattern(p)
		if !pattern.IsValid() {
			s.jsonError(c, http.StatusBadRequest, "invalid pattern filter: "+p)
			return
		}
		filter.Pattern = pattern
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.jsonError(c, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.jsonError(c, http.StatusBadRequest, "invalid offset: "+v)
			return
		}
		filter.Offset = offset
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.jsonError(c, http.StatusBadRequest, "invalid from timestamp, expected RFC 3339: "+v)
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.jsonError(c, http.StatusBadRequest, "invalid to timestamp, expected RFC 3339: "+v)
			return
		}
		filter.To = to
	}

	records, err := s.records.List(c.Request.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list interpretation records")
		s.jsonError(c, http.StatusInternalServerError, "listing interpretations failed")
		return
	}
	total, err := s.records.Count(c.Request.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to count interpretation records")
		s.jsonError(c, http.StatusInternalServerError, "listing interpretations failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interpretations": records,
		"total":           total,
		"limit":           filter.Limit,
		"offset":          filter.Offset,
	})
}

// handleGetInterpretation returns one stored interpretation record.
func (s *Server) handleGetInterpretation(c *gin.Context) {
	if s.records == nil {
		s.jsonError(c, http.StatusServiceUnavailable, "interpretation storage is not configured")
		return
	}

	record, err := s.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.jsonError(c, http.StatusNotFound, "interpretation not found")
			return
		}
		s.logger.WithError(err).Error("Failed to load interpretation record")
		s.jsonError(c, http.StatusInternalServerError, "loading interpretation failed")
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleReference returns predicted values for query demographics.
func (s *Server) handleReference(c *gin.Context) {
	age, err := strconv.Atoi(c.Query("age"))
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, "invalid or missing age")
		return
	}
	if !gli.AgeInRange(age) {
		s.jsonError(c, http.StatusBadRequest, "age outside supported range")
		return
	}
	heightCM, err := strconv.ParseFloat(c.Query("height_cm"), 64)
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, "invalid or missing height_cm")
		return
	}
	if !gli.HeightInRange(heightCM) {
		s.jsonError(c, http.StatusBadRequest, "height outside supported range")
		return
	}
	sex := domain.Sex(strings.ToUpper(strings.TrimSpace(c.Query("sex"))))
	if !sex.IsValid() {
		s.jsonError(c, http.StatusBadRequest, "invalid or missing sex (M or F)")
		return
	}

	predicted, err := s.reference.Predict(age, heightCM, sex)
	if err != nil {
		s.jsonError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"demographics": gin.H{
			"age":       age,
			"sex":       sex,
			"height_cm": heightCM,
		},
		"predicted_values":   predicted,
		"reference_equation": "GLI-2012",
	})
}

// handleMetrics returns a point-in-time metrics snapshot.
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// jsonError writes a uniform error payload.
func (s *Server) jsonError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":         "error",
		"error":          message,
		"correlation_id": c.GetString("correlation_id"),
	})
}

// processingError maps a service error onto an HTTP response, keeping
// the structured code and details when the error carries them.
func (s *Server) processingError(c *gin.Context, err error) {
	var procErr *domain.ProcessingError
	if errors.As(err, &procErr) {
		status := http.StatusInternalServerError
		switch procErr.Code {
		case domain.ErrInvalidInput, domain.ErrValidation:
			status = http.StatusBadRequest
		}
		procErr.RequestID = c.GetString("correlation_id")
		c.JSON(status, gin.H{
			"status": "error",
			"error":  procErr,
		})
		return
	}

	s.logger.WithError(err).Error("Interpretation request failed")
	s.jsonError(c, http.StatusInternalServerError, err.Error())
}
