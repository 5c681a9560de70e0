// Package server exposes the dashboard HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"amanhealth/internal/app"
	"amanhealth/internal/ratelimit"
	"amanhealth/internal/util"
	"amanhealth/pkg/ai"
	"amanhealth/pkg/backup"
	"amanhealth/pkg/domain"
	"amanhealth/pkg/storage"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                  *app.App
	Gemini               *ai.GeminiClient
	Classifier           *ai.Classifier
	GenerationModel      string
	ImageModel           string
	VideoModel           string
	Backups              *backup.Manager
	Objects              storage.ObjectStore
	RedisAddr            string
	RedisPassword        string
	AIRateLimitPerMinute int
	MaxUploadBytes       int64
}

// Server exposes HTTP endpoints for the dashboard backend.
type Server struct {
	app             *app.App
	gemini          *ai.GeminiClient
	classifier      *ai.Classifier
	generationModel string
	imageModel      string
	videoModel      string
	backups         *backup.Manager
	objects         storage.ObjectStore
	sessions        *sessionRegistry
	aiLimiter       *ratelimit.FixedWindowLimiter
	mux             *http.ServeMux
	maxUploadBytes  int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Gemini == nil || cfg.Classifier == nil {
		return nil, errors.New("gemini client and classifier are required")
	}
	aiLimit := cfg.AIRateLimitPerMinute
	if aiLimit <= 0 {
		aiLimit = 20
	}
	var limiter *ratelimit.FixedWindowLimiter
	var err error
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "aman:ratelimit:ai", aiLimit, time.Minute)
	} else {
		limiter, err = ratelimit.NewLocalFixedWindowLimiter(aiLimit, time.Minute)
	}
	if err != nil {
		return nil, fmt.Errorf("init ai limiter: %w", err)
	}
	s := &Server{
		app:             cfg.App,
		gemini:          cfg.Gemini,
		classifier:      cfg.Classifier,
		generationModel: cfg.GenerationModel,
		imageModel:      cfg.ImageModel,
		videoModel:      cfg.VideoModel,
		backups:         cfg.Backups,
		objects:         cfg.Objects,
		sessions:        newSessionRegistry(),
		aiLimiter:       limiter,
		mux:             http.NewServeMux(),
		maxUploadBytes:  normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestLog(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// records & medications
	s.mux.HandleFunc("/api/records", s.handleRecords)
	s.mux.HandleFunc("/api/records/", s.handleRecordByID)
	s.mux.HandleFunc("/api/medications", s.handleMedications)
	s.mux.HandleFunc("/api/medications/", s.handleMedicationByID)

	// overviews
	s.mux.HandleFunc("/api/costs", s.handleCosts)
	s.mux.HandleFunc("/api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/api/profile", s.handleProfile)
	s.mux.HandleFunc("/api/payers", s.handlePayers)

	// AI surfaces
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/analyze/bulk", s.handleAnalyzeBulk)
	s.mux.HandleFunc("/api/chat/sessions", s.handleChatSessions)
	s.mux.HandleFunc("/api/chat/sessions/", s.handleChatSessionByID)
	s.mux.HandleFunc("/api/assistant/meal-plan", s.handleMealPlan)
	s.mux.HandleFunc("/api/studio/image", s.handleStudioImage)
	s.mux.HandleFunc("/api/studio/image/edit", s.handleStudioImageEdit)
	s.mux.HandleFunc("/api/studio/video", s.handleStudioVideo)

	// drive backup
	s.mux.HandleFunc("/api/backup", s.handleBackup)
	s.mux.HandleFunc("/api/restore", s.handleRestore)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// records

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		kind := domain.RecordKind(r.URL.Query().Get("kind"))
		if kind != "" && !domain.IsValidKind(kind) {
			writeError(w, http.StatusBadRequest, "unknown record kind")
			return
		}
		records, err := s.app.ListRecords(kind)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
	case http.MethodPost:
		var input app.RecordInput
		if err := decodeJSON(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		record, err := s.app.RecordManualEntry(input)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRecordByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/records/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "record id is required")
		return
	}
	if sub != "" {
		s.handleRecordAttachments(w, r, id, sub)
		return
	}
	switch r.Method {
	case http.MethodGet:
		record, err := s.app.GetRecord(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodPatch, http.MethodPut:
		var patch app.RecordPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		record, err := s.app.UpdateRecord(id, patch)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := s.app.DeleteRecord(id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// medications

func (s *Server) handleMedications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active") == "true"
		meds, err := s.app.ListMedications(activeOnly)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medications": meds})
	case http.MethodPost:
		var input app.MedicationInput
		if err := decodeJSON(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		med, err := s.app.SaveMedicationEntry(input)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, med)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMedicationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/medications/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "medication id is required")
		return
	}
	if sub == "status" {
		s.handleMedicationStatus(w, r, id)
		return
	}
	if sub != "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var patch app.MedicationPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		med, err := s.app.UpdateMedication(id, patch)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, med)
	case http.MethodDelete:
		if err := s.app.DeleteMedication(id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMedicationStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	med, err := s.app.ToggleMedicationStatus(id, req.Reason)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// overviews

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := s.app.AggregateCostsByPayer()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.Dashboard()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profile, err := s.app.Profile()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var profile domain.UserProfile
		if err := decodeJSON(r, &profile); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.PutProfile(profile); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payers": s.app.Payers()})
}

// helpers

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 20 * 1024 * 1024
	}
	return value
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *ai.SchemaError
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrDuplicateMedication):
		writeError(w, http.StatusConflict, "medication with this name is already active")
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrStopReasonRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ai.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "ai quota exceeded, try again later")
	case errors.As(err, &schemaErr):
		writeError(w, http.StatusUnprocessableEntity, "ai returned an unusable analysis")
	default:
		slog.Error("request failed", "path", r.URL.Path, "method", r.Method, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowAI(w http.ResponseWriter, r *http.Request) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if s.aiLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many ai requests")
	return false
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
