// Package server exposes the engine over HTTP. The routing layer stays
// thin: decode, validate the payload shape, delegate, encode.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/validation"
	"lead-engine/internal/ingest"
	"lead-engine/internal/mapper"
	"lead-engine/internal/notify"
	"lead-engine/internal/project"
	"lead-engine/internal/schema"
	"lead-engine/internal/store"
)

// Server wires the engine's inbound operations to HTTP routes.
type Server struct {
	registry     schema.Registry
	ingestor     *ingest.Ingestor
	leads        *store.LeadStore
	notifier     *notify.Notifier // nil when outbound email is disabled
	maxBatchSize int
	logger       logger.Logger
}

func New(registry schema.Registry, ingestor *ingest.Ingestor, leads *store.LeadStore, notifier *notify.Notifier, maxBatchSize int, log logger.Logger) *Server {
	return &Server{
		registry:     registry,
		ingestor:     ingestor,
		leads:        leads,
		notifier:     notifier,
		maxBatchSize: maxBatchSize,
		logger:       log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Routes returns the engine's route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/branches/{branch}/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/leads/{id}", s.handleProjectLead)
	mux.HandleFunc("POST /api/leads/{id}/notify", s.handleNotifyLead)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type ingestRequest struct {
	Origin   string         `json:"origin,omitempty"`
	OriginID string         `json:"originId,omitempty"`
	Records  []ingestRecord `json:"records"`
}

type ingestRecord struct {
	Cells  []string               `json:"cells,omitempty"`
	Values map[string]interface{} `json:"values,omitempty"`
}

func ingestRequestSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"records"},
		Properties: map[string]validation.Property{
			"origin": {
				Type: "string",
				Enum: []string{string(mapper.OriginSheet), string(mapper.OriginWebhook)},
			},
			"originId": {Type: "string"},
			"records": {
				Type: "array",
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"cells":  {Type: "array", Items: &validation.Property{Type: "string"}},
						"values": {Type: "object"},
					},
				},
			},
		},
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	branchID := r.PathValue("branch")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.NewPayloadInvalidError(err.Error()))
		return
	}

	result, err := validation.ValidateDocument(body, ingestRequestSchema())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.NewPayloadInvalidError(err.Error()))
		return
	}
	if !result.Valid {
		detail, _ := json.Marshal(result.Errors)
		s.writeError(w, http.StatusBadRequest, apperrors.NewPayloadInvalidError(string(detail)))
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.NewPayloadInvalidError(err.Error()))
		return
	}
	if s.maxBatchSize > 0 && len(req.Records) > s.maxBatchSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			apperrors.NewBatchTooLargeError(len(req.Records), s.maxBatchSize))
		return
	}

	origin := mapper.Origin(req.Origin)
	records := make([]mapper.RawRecord, len(req.Records))
	for n, rec := range req.Records {
		rowOrigin := origin
		if rowOrigin == "" {
			if rec.Values != nil {
				rowOrigin = mapper.OriginWebhook
			} else {
				rowOrigin = mapper.OriginSheet
			}
		}
		records[n] = mapper.RawRecord{
			Origin:    rowOrigin,
			OriginID:  req.OriginID,
			RowNumber: n,
			Cells:     rec.Cells,
			Values:    rec.Values,
		}
	}

	report, err := s.ingestor.Ingest(r.Context(), branchID, records)
	if err != nil {
		stdErr := apperrors.AsStandard(err)
		switch stdErr.Code {
		case apperrors.ErrCodeBranchNotFound:
			s.writeError(w, http.StatusNotFound, stdErr)
		case apperrors.ErrCodeBranchInactive:
			s.writeError(w, http.StatusConflict, stdErr)
		default:
			s.writeError(w, http.StatusServiceUnavailable, stdErr)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleProjectLead(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	view := project.View(r.URL.Query().Get("view"))
	if view == "" {
		view = project.ViewDetail
	}
	if !project.ValidView(view) {
		s.writeError(w, http.StatusBadRequest,
			apperrors.NewPayloadInvalidError("view must be one of list, detail, email"))
		return
	}

	lead, err := s.leads.Get(r.Context(), leadID)
	if err != nil {
		stdErr := apperrors.AsStandard(err)
		if stdErr.Code == apperrors.ErrCodeLeadNotFound {
			s.writeError(w, http.StatusNotFound, stdErr)
		} else {
			s.writeError(w, http.StatusServiceUnavailable, stdErr)
		}
		return
	}

	branch, err := s.registry.GetBranch(r.Context(), lead.BranchID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, apperrors.AsStandard(err))
		return
	}
	mappings, err := s.registry.GetMappings(r.Context(), lead.BranchID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, apperrors.AsStandard(err))
		return
	}

	projection, err := project.BuildForBranch(lead, branch, mappings, view)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.NewPayloadInvalidError(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, projection)
}

type notifyRequest struct {
	To string `json:"to"`
}

// handleNotifyLead mails the email-view projection of a persisted lead to a
// recipient. Available only when the SES notifier is configured.
func (s *Server) handleNotifyLead(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		s.writeError(w, http.StatusNotImplemented,
			apperrors.NewPayloadInvalidError("outbound email is disabled"))
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		s.writeError(w, http.StatusBadRequest,
			apperrors.NewPayloadInvalidError("body must be {\"to\": \"<address>\"}"))
		return
	}

	lead, err := s.leads.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		stdErr := apperrors.AsStandard(err)
		if stdErr.Code == apperrors.ErrCodeLeadNotFound {
			s.writeError(w, http.StatusNotFound, stdErr)
		} else {
			s.writeError(w, http.StatusServiceUnavailable, stdErr)
		}
		return
	}

	branch, err := s.registry.GetBranch(r.Context(), lead.BranchID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, apperrors.AsStandard(err))
		return
	}
	mappings, err := s.registry.GetMappings(r.Context(), lead.BranchID)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, apperrors.AsStandard(err))
		return
	}

	projection, err := project.BuildForBranch(lead, branch, mappings, project.ViewEmail)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, apperrors.AsStandard(err))
		return
	}

	messageID, err := s.notifier.SendLead(r.Context(), req.To, branch, projection)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, apperrors.AsStandard(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, stdErr *apperrors.StandardError) {
	s.logger.Warn("request failed", map[string]interface{}{
		"status": status,
		"code":   string(stdErr.Code),
	})
	s.writeJSON(w, status, map[string]interface{}{"error": stdErr})
}
