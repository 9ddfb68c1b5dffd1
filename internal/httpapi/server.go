// Package httpapi exposes the operational HTTP surface: health and readiness
// checks, Prometheus metrics, call history, recording listings, and a
// websocket console for talking to the assistant in text form.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/edoardomanca/greta/internal/calllog"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/room"
	"github.com/edoardomanca/greta/internal/transcript"
)

// Conversationalist is the text-mode brain behind the console websocket.
type Conversationalist interface {
	Greet(ctx context.Context) (string, error)
	Reply(ctx context.Context, text string) (reply string, hangup bool, err error)
}

// RoomRuntime is the worker's call attachment surface, driven by the
// operator endpoints under /v1/rooms.
type RoomRuntime interface {
	Attach(ctx context.Context, roomName string) error
	Hangup(ctx context.Context) error
	Detach(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	calls    calllog.Store
	brain    Conversationalist
	rooms    RoomRuntime
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, calls calllog.Store, brain Conversationalist, rooms RoomRuntime, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		calls:   calls,
		brain:   brain,
		rooms:   rooms,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
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

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/{id}/turns", s.handleListTurns)
	r.Get("/v1/recordings", s.handleListRecordings)
	r.Get("/v1/console/ws", s.handleConsoleWS)
	r.Post("/v1/rooms/{name}/attach", s.handleAttachRoom)
	r.Post("/v1/rooms/hangup", s.handleHangupRoom)
	r.Post("/v1/rooms/detach", s.handleDetachRoom)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"console_configured": s.brain != nil,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"agent_identity": s.cfg.AgentIdentity,
		"room_prefix":    s.cfg.RoomPrefix,
		"models": map[string]string{
			"stt":            s.cfg.STTModel,
			"llm":            s.cfg.LLMModel,
			"tts":            s.cfg.TTSModel,
			"vad":            s.cfg.VADModel,
			"turn_detection": s.cfg.TurnDetectionModel,
		},
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	calls, err := s.calls.RecentCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if calls == nil {
		calls = []calllog.Call{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	turns, err := s.calls.Turns(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	if turns == nil {
		turns = []calllog.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleAttachRoom(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		respondError(w, http.StatusNotImplemented, "rooms_unavailable", "room runtime not configured")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "invalid_room_name", "missing room name")
		return
	}

	if err := s.rooms.Attach(r.Context(), name); err != nil {
		if errors.Is(err, room.ErrAlreadyAttached) {
			respondError(w, http.StatusConflict, "already_attached", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "attach_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "attached", "room": name})
}

func (s *Server) handleHangupRoom(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		respondError(w, http.StatusNotImplemented, "rooms_unavailable", "room runtime not configured")
		return
	}
	if err := s.rooms.Hangup(r.Context()); err != nil {
		if errors.Is(err, room.ErrNotAttached) {
			respondError(w, http.StatusConflict, "not_attached", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "hangup_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "hung_up"})
}

func (s *Server) handleDetachRoom(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		respondError(w, http.StatusNotImplemented, "rooms_unavailable", "room runtime not configured")
		return
	}
	if err := s.rooms.Detach(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "detach_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "detached"})
}

type recordingEntry struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

func (s *Server) handleListRecordings(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.cfg.RecordingsDir)
	if err != nil {
		if os.IsNotExist(err) {
			respondJSON(w, http.StatusOK, map[string]any{"recordings": []recordingEntry{}})
			return
		}
		respondError(w, http.StatusInternalServerError, "recordings_unreadable", err.Error())
		return
	}

	recordings := make([]recordingEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".wav", ".ogg", ".json":
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, recordingEntry{
			Name:      e.Name(),
			SizeBytes: info.Size(),
			Modified:  info.ModTime(),
		})
	}
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Modified.After(recordings[j].Modified)
	})
	respondJSON(w, http.StatusOK, map[string]any{"recordings": recordings})
}

type consoleInbound struct {
	Text string `json:"text"`
}

type consoleOutbound struct {
	Role   string `json:"role"`
	Text   string `json:"text"`
	Hangup bool   `json:"hangup,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	if s.brain == nil {
		respondError(w, http.StatusNotImplemented, "console_unavailable", "console brain not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.CallEvents.WithLabelValues("console_connected").Inc()
	defer s.metrics.CallEvents.WithLabelValues("console_disconnected").Inc()

	ctx := r.Context()

	greeting, err := s.brain.Greet(ctx)
	if err == nil && greeting != "" {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(consoleOutbound{Role: transcript.RoleAssistant, Text: greeting}); err != nil {
			return
		}
	}

	conn.SetReadLimit(1 << 20)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		var in consoleInbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if strings.TrimSpace(in.Text) == "" {
			continue
		}

		reply, hangup, err := s.brain.Reply(ctx, in.Text)
		_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err != nil {
			if werr := conn.WriteJSON(consoleOutbound{Role: transcript.RoleAssistant, Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(consoleOutbound{Role: transcript.RoleAssistant, Text: reply, Hangup: hangup}); err != nil {
			return
		}
		if hangup {
			return
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
