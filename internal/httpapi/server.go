package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pmontanari/taskchat/internal/config"
	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/engine"
	"github.com/pmontanari/taskchat/internal/observability"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, eng *engine.Engine, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		engine:  eng,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly
				// opened up. Non-browser clients omit Origin and pass.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware([]byte(s.cfg.AuthSecret)))
		r.Post("/v1/chat/turn", s.handleTurn)
		r.Get("/v1/chat/conversation", s.handleActiveConversation)
		r.Get("/v1/chat/history", s.handleHistory)
		r.Get("/v1/chat/records", s.handleRecords)
		r.Get("/v1/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type turnRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.engine.HandleTurn(r.Context(), userID, req.ConversationID, req.Text)
	switch {
	case errors.Is(err, engine.ErrEmptyUtterance):
		respondError(w, http.StatusBadRequest, "empty_text", "text must not be empty")
	case errors.Is(err, convo.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "turn_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleActiveConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	conv, err := s.engine.ActiveConversation(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "conversation_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "missing_conversation_id", "query parameter conversation_id is required")
		return
	}

	msgs, err := s.engine.History(r.Context(), userID, conversationID, queryLimit(r))
	switch {
	case errors.Is(err, convo.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "history_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"conversation_id": conversationID,
			"messages":        msgs,
		})
	}
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	if conversationID == "" {
		respondError(w, http.StatusBadRequest, "missing_conversation_id", "query parameter conversation_id is required")
		return
	}

	recs, err := s.engine.ToolCallRecords(r.Context(), userID, conversationID, queryLimit(r))
	switch {
	case errors.Is(err, convo.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "records_failed", err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"conversation_id": conversationID,
			"records":         recs,
		})
	}
}

func queryLimit(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
