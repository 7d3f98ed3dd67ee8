package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aimessenger/aimessenger/internal/catalog"
	"github.com/aimessenger/aimessenger/internal/dispatch"
	"github.com/aimessenger/aimessenger/internal/export"
	"github.com/aimessenger/aimessenger/internal/health"
	"github.com/aimessenger/aimessenger/internal/settings"
)

// CreateConversationRequest for starting a thread with a persona
type CreateConversationRequest struct {
	ModelID string `json:"model_id"`
}

// SendMessageRequest for posting a user turn
type SendMessageRequest struct {
	Content string `json:"content"`
}

// CreateModelRequest for adding a custom persona
type CreateModelRequest struct {
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	Personality string `json:"personality"`
	Provider    string `json:"provider"`
	APIModel    string `json:"api_model"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleConversations handles GET /api/conversations and POST /api/conversations
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		convs, err := s.conversations.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, convs)

	case http.MethodPost:
		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ModelID == "" {
			http.Error(w, "model_id required", http.StatusBadRequest)
			return
		}
		if _, err := s.catalog.Get(req.ModelID); err != nil {
			http.Error(w, "Unknown persona", http.StatusNotFound)
			return
		}

		id, err := s.conversations.CreateConversation(req.ModelID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		conv, err := s.conversations.Get(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, conv)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConversationByID handles /api/conversations/{id} and its
// messages, transcript and view subresources
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	id := parts[0]
	if id == "" {
		http.Error(w, "Conversation ID required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			conv, err := s.conversations.Get(id)
			if err != nil {
				http.Error(w, "Conversation not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, conv)

		case http.MethodDelete:
			if err := s.conversations.RemoveConversation(id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "messages":
		s.handleConversationMessages(w, r, id)
	case "transcript":
		s.handleTranscript(w, r, id)
	case "view":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := s.conversations.Get(id); err != nil {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		s.conversations.SetActiveConversation(id)
		s.conversations.MarkRead(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if _, err := s.conversations.Get(id); err != nil {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		msgs, err := s.conversations.Messages(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, msgs)

	case http.MethodPost:
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err := s.pipeline.Send(id, req.Content)
		switch {
		case errors.Is(err, dispatch.ErrEmptyContent):
			http.Error(w, "Message content is empty", http.StatusBadRequest)
		case errors.Is(err, dispatch.ErrNoConversation):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			// the reply resolves asynchronously over the WebSocket feed
			w.WriteHeader(http.StatusAccepted)
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conv, err := s.conversations.Get(id)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	msgs, err := s.conversations.Messages(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	personaName := ""
	if persona, err := s.catalog.Get(conv.ModelID); err == nil {
		personaName = persona.Name
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(export.Transcript(msgs, personaName)))
}

// handleModels handles GET /api/models and POST /api/models
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := map[string]any{"models": s.catalog.List()}
		if err := s.catalog.Error(); err != "" {
			resp["error"] = err
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		var req CreateModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model, err := s.catalog.CreateCustom(req.Name, req.Avatar, req.Personality, req.Provider, req.APIModel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, model)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleModelByID handles PUT /api/models/{id}
func (s *Server) handleModelByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/models/"), "/")
	if id == "" {
		http.Error(w, "Model ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		model, err := s.catalog.Get(id)
		if err != nil {
			http.Error(w, "Persona not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, model)

	case http.MethodPut:
		var patch catalog.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		model, err := s.catalog.Update(id, patch)
		if errors.Is(err, catalog.ErrNotFound) {
			http.Error(w, "Persona not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, model)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSettings handles GET /api/settings and PUT /api/settings. Updates
// take effect immediately; credential changes trigger fresh health probes.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Get())

	case http.MethodPut:
		var patch settings.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updated := s.settings.Update(patch)
		if s.monitor != nil {
			s.monitor.Probe(health.CapabilityChat)
			s.monitor.Probe(health.CapabilityImage)
			s.monitor.Probe(health.CapabilityOCR)
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus handles GET /api/status: per-capability connection state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]health.ConnectionStatus{
		string(health.CapabilityChat):  s.monitor.Status(health.CapabilityChat),
		string(health.CapabilityImage): s.monitor.Status(health.CapabilityImage),
		string(health.CapabilityOCR):   s.monitor.Status(health.CapabilityOCR),
	})
}
