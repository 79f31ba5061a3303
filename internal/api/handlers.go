package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/seekerlabs/seekerd/internal/orchestrator"
	"github.com/seekerlabs/seekerd/internal/outcome"
	"github.com/seekerlabs/seekerd/internal/sair"
	"github.com/seekerlabs/seekerd/internal/types"
)

// SubmitRequest is the intake payload for POST /api/requests.
type SubmitRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"input_text"`
}

// FeedbackRequest is the payload for POST /api/requests/{id}/feedback.
type FeedbackRequest struct {
	Satisfaction float64 `json:"satisfaction"`
	Correct      *bool   `json:"correct,omitempty"`
}

// handleRequests accepts new requests for classification and routing.
func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.orch.ClassifyAndRoute(r.Context(), body.UserID, body.Text)
	if err != nil {
		s.logger.Error("classify and route failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"request_id":       req.ID,
		"state":            req.State,
		"classification":   req.Classification,
		"routing_decision": req.Routing,
	})
}

// handleRequestDetail serves /api/requests/{id} and its sub-actions.
func (s *Server) handleRequestDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "request id required")
		return
	}

	requestID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		req, err := s.orch.Get(r.Context(), requestID)
		if err != nil {
			if errors.Is(err, outcome.ErrNotFound) {
				writeError(w, http.StatusNotFound, "request not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, req)

	case action == "feedback" && r.Method == http.MethodPost:
		var body FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		fb := types.Feedback{Satisfaction: body.Satisfaction, Correct: body.Correct}
		if err := s.orch.Feedback(r.Context(), requestID, fb); err != nil {
			if errors.Is(err, orchestrator.ErrInvalidFeedback) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if errors.Is(err, outcome.ErrNotFound) {
				writeError(w, http.StatusNotFound, "request not found")
				return
			}
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "feedback recorded"})

	case action == "close" && r.Method == http.MethodPost:
		if err := s.orch.Close(requestID); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})

	default:
		writeError(w, http.StatusBadRequest, "invalid action or method")
	}
}

// handleAgents lists the agent fleet.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": snap.Version,
		"agents":  snap.Agents,
	})
}

// handleAgentDetail serves /api/agents/{id}.
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent id required")
		return
	}

	view, ok := s.registry.Snapshot().Agent(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleTaxonomy returns the current category snapshot.
func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.taxonomy.Snapshot())
}

// handleLearning returns the adaptive loop summary plus routing analytics.
func (s *Server) handleLearning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"learning": s.loop.Status(),
		"routing":  s.router.Stats(),
	})
}

// handleLearningRun triggers one learning cycle. Single-flight: a concurrent
// trigger gets 409.
func (s *Server) handleLearningRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	update, err := s.loop.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, sair.ErrCycleRunning) {
			writeError(w, http.StatusConflict, "learning cycle already running")
			return
		}
		s.logger.Error("manual learning cycle failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{"status": "completed"}
	if update != nil {
		resp["update"] = update
	}
	writeJSON(w, http.StatusAccepted, resp)
}
