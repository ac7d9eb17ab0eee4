package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/workflow"
)

const maxBodyBytes = 1 << 20

// ResearchRequest is the body of POST /v1/research
type ResearchRequest struct {
	Company      string                  `json:"company"`
	Ticker       string                  `json:"ticker,omitempty"`
	Requester    domain.RequesterContext `json:"requester"`
	PlanVariants int                     `json:"plan_variants,omitempty"`
	Metadata     map[string]interface{}  `json:"metadata,omitempty"`
}

func (r ResearchRequest) toDomain(requestID string) *domain.ResearchRequest {
	return &domain.ResearchRequest{
		ID: requestID,
		Target: domain.Entity{
			Name:   strings.TrimSpace(r.Company),
			Ticker: strings.ToUpper(strings.TrimSpace(r.Ticker)),
		},
		Requester:    r.Requester,
		PlanVariants: r.PlanVariants,
		Metadata:     r.Metadata,
	}
}

// ErrorResponse is the body of every non-2xx reply. Report carries the
// partial projection when a run stopped early.
type ErrorResponse struct {
	Error  string                 `json:"error"`
	Report *domain.ResearchReport `json:"report,omitempty"`
}

// ListResponse is the body of GET /v1/research
type ListResponse struct {
	Reports []domain.ReportSummary `json:"reports"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var body ResearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), nil)
		return
	}

	request := body.toDomain(middleware.GetReqID(r.Context()))
	if err := request.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	if !s.limiter.Acquire() {
		w.Header().Set("Retry-After", "30")
		s.writeError(w, r, http.StatusTooManyRequests, errors.New("too many research runs in progress"), nil)
		return
	}
	defer s.limiter.Release()

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	report, err := s.service.Execute(ctx, request)
	if err != nil {
		s.writeError(w, r, statusFor(err), err, report)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, statusFor(err), err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	summaries, err := s.service.Reports(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, statusFor(err), err, nil)
		return
	}
	if summaries == nil {
		summaries = []domain.ReportSummary{}
	}
	s.writeJSON(w, r, http.StatusOK, ListResponse{Reports: summaries, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.service.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, status, health)
}

func listOptions(r *http.Request) (domain.ListOptions, error) {
	opts := domain.ListOptions{Limit: 20}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = v
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	return opts, nil
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyTarget):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotConverged):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), "Failed to encode response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error, report *domain.ResearchReport) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "Request failed", err, map[string]interface{}{
			"path":   r.URL.Path,
			"status": status,
		})
	}
	s.writeJSON(w, r, status, ErrorResponse{Error: err.Error(), Report: report})
}
