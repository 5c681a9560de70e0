package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"amanhealth/internal/app"
	"amanhealth/internal/ingest"
	"amanhealth/internal/util"
	"amanhealth/pkg/ai"
	"amanhealth/pkg/backup"
	"amanhealth/pkg/domain"
	"amanhealth/pkg/storage"
)

// document analysis

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	files, kind, payer, ok := s.readUpload(w, r, 1)
	if !ok {
		return
	}
	payload, err := ingest.Encode(files[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, uploadErrorMessage(err))
		return
	}
	analysis, err := s.classifier.ClassifyDocument(r.Context(), payload)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	result, err := s.app.MergeClassifiedDocument(analysis, kind, payer)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleAnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	files, kind, payer, ok := s.readUpload(w, r, 20)
	if !ok {
		return
	}
	payloads, err := ingest.EncodeAll(r.Context(), files, 4)
	if err != nil {
		writeError(w, http.StatusBadRequest, uploadErrorMessage(err))
		return
	}
	analyses, err := s.classifier.ClassifyBulk(r.Context(), payloads)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	results := make([]app.MergeResult, 0, len(analyses))
	for _, analysis := range analyses {
		result, err := s.app.MergeClassifiedDocument(analysis, kind, payer)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		results = append(results, result)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"results": results})
}

// uploadErrorMessage keeps correctable input errors specific and everything
// else generic.
func uploadErrorMessage(err error) string {
	if errors.Is(err, ingest.ErrLegacySpreadsheet) {
		return ingest.ErrLegacySpreadsheet.Error()
	}
	return "unreadable document"
}

// readUpload parses multipart form uploads plus the kind and payer fields.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, maxFiles int) ([]ingest.File, domain.RecordKind, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", "", false
	}
	kind := domain.RecordKind(r.FormValue("kind"))
	if kind != "" && !domain.IsValidKind(kind) {
		writeError(w, http.StatusBadRequest, "unknown record kind")
		return nil, "", "", false
	}
	payer := strings.TrimSpace(r.FormValue("payer"))

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return nil, "", "", false
	}
	if len(headers) > maxFiles {
		writeError(w, http.StatusBadRequest, "too many files")
		return nil, "", "", false
	}
	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload")
			return nil, "", "", false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload")
			return nil, "", "", false
		}
		files = append(files, ingest.File{
			Name: header.Filename,
			MIME: header.Header.Get("Content-Type"),
			Data: data,
		})
	}
	return files, kind, payer, true
}

// attachments

func (s *Server) handleRecordAttachments(w http.ResponseWriter, r *http.Request, recordID, sub string) {
	name, rest, hasRest := strings.Cut(sub, "/")
	if name != "attachments" {
		http.NotFound(w, r)
		return
	}
	if hasRest && rest != "" {
		s.handleAttachmentDownload(w, r, recordID, rest)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	files, _, _, ok := s.readUpload(w, r, 1)
	if !ok {
		return
	}
	file := files[0]
	att := domain.Attachment{
		ID:      util.NewID(),
		Name:    file.Name,
		MIME:    ingest.ResolveMIME(file.Name, file.MIME),
		AddedAt: time.Now().UnixMilli(),
	}
	if s.objects != nil {
		key := storage.AttachmentKey(recordID, att.ID, file.Name)
		if err := s.objects.Put(r.Context(), key, bytes.NewReader(file.Data), int64(len(file.Data)), att.MIME); err != nil {
			slog.Error("store attachment", "record", recordID, "error", err)
			writeError(w, http.StatusBadGateway, "attachment storage unavailable")
			return
		}
		att.StorageKey = key
	} else {
		att.Base64 = base64.StdEncoding.EncodeToString(file.Data)
	}
	record, err := s.app.AttachFile(recordID, att)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleAttachmentDownload(w http.ResponseWriter, r *http.Request, recordID, attachmentID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	att, err := s.app.FindAttachment(recordID, attachmentID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	contentType := att.MIME
	if contentType == "" {
		contentType = ingest.FallbackMIME
	}
	if att.StorageKey != "" && s.objects != nil {
		obj, err := s.objects.Get(r.Context(), att.StorageKey)
		if err != nil {
			slog.Error("fetch attachment", "record", recordID, "error", err)
			writeError(w, http.StatusBadGateway, "attachment storage unavailable")
			return
		}
		defer obj.Close()
		w.Header().Set("Content-Type", contentType)
		io.Copy(w, obj)
		return
	}
	data, err := base64.StdEncoding.DecodeString(att.Base64)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt attachment")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// chat

const (
	maxChatSessions = 64
	sessionIdleTTL  = time.Hour
)

type sessionEntry struct {
	session  *ai.ChatSession
	lastSeen time.Time
}

// sessionRegistry holds live chat sessions. Sessions idle past the TTL are
// dropped, and when the cap is hit the least recently used one is evicted,
// so a client that never deletes its sessions cannot grow the map unbounded.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: map[string]*sessionEntry{}, now: time.Now}
}

func (r *sessionRegistry) add(session *ai.ChatSession) string {
	id := util.NewID()
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.pruneLocked(now)
	if len(r.entries) >= maxChatSessions {
		r.evictOldestLocked()
	}
	r.entries[id] = &sessionEntry{session: session, lastSeen: now}
	return id
}

func (r *sessionRegistry) get(id string) (*ai.ChatSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.lastSeen) > sessionIdleTTL {
		delete(r.entries, id)
		return nil, false
	}
	entry.lastSeen = now
	return entry.session, true
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) pruneLocked(now time.Time) {
	for id, entry := range r.entries {
		if now.Sub(entry.lastSeen) > sessionIdleTTL {
			delete(r.entries, id)
		}
	}
}

func (r *sessionRegistry) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range r.entries {
		if oldestID == "" || entry.lastSeen.Before(oldest) {
			oldestID = id
			oldest = entry.lastSeen
		}
	}
	if oldestID != "" {
		delete(r.entries, oldestID)
	}
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		ExtendedReasoning bool `json:"extendedReasoning"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	session := ai.NewChatSession(s.gemini, s.generationModel, req.ExtendedReasoning)
	id := s.sessions.add(session)
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId":         id,
		"extendedReasoning": req.ExtendedReasoning,
	})
}

func (s *Server) handleChatSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	session, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat session")
		return
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"turns": session.Transcript()})
		case http.MethodDelete:
			s.sessions.remove(id)
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}
	case "messages":
		s.handleChatMessage(w, r, session)
	case "audio":
		s.handleChatAudio(w, r, session)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request, session *ai.ChatSession) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	reply, err := session.Send(r.Context(), req.Text)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleChatAudio(w http.ResponseWriter, r *http.Request, session *ai.ChatSession) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	var req struct {
		AudioBase64 string `json:"audioBase64"`
		MimeType    string `json:"mimeType"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AudioBase64 == "" {
		writeError(w, http.StatusBadRequest, "audioBase64 is required")
		return
	}
	if req.MimeType == "" {
		req.MimeType = ai.PCMMimeType
	}
	if req.MimeType == ai.PCMMimeType {
		// Decode and re-encode raw PCM so a malformed clip fails here and
		// out-of-range samples reach the model clamped.
		samples, err := ai.DecodePCM16(req.AudioBase64)
		if err != nil || len(samples) == 0 {
			writeError(w, http.StatusBadRequest, "audioBase64 is not valid PCM16 audio")
			return
		}
		req.AudioBase64 = ai.EncodePCM16(samples)
	}
	reply, err := session.SendAudio(r.Context(), req.AudioBase64, req.MimeType)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// writeChatError keeps the conversation alive on upstream failures: the
// session already recorded the Arabic error reply, so the client gets that
// as a normal message unless the caller was rate limited.
func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ai.ErrRateLimited) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "ai quota exceeded, try again later")
		return
	}
	slog.Error("chat turn failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusOK, map[string]string{"reply": ai.ErrorReply})
}

// assistant & studio

func (s *Server) handleMealPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	profile, err := s.app.Profile()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	plan, err := ai.GenerateMealPlan(r.Context(), s.gemini, s.generationModel, profile)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": plan})
}

func (s *Server) handleStudioImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	var req struct {
		Prompt      string `json:"prompt"`
		AspectRatio string `json:"aspectRatio"`
		ImageSize   string `json:"imageSize"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	image, err := s.gemini.GenerateImage(r.Context(), s.imageModel, req.Prompt, req.AspectRatio, req.ImageSize)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"imageBase64": base64.StdEncoding.EncodeToString(image),
		"mimeType":    "image/png",
	})
}

func (s *Server) handleStudioImageEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	var req struct {
		ImageBase64 string `json:"imageBase64"`
		MimeType    string `json:"mimeType"`
		Prompt      string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil || req.ImageBase64 == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "imageBase64 and prompt are required")
		return
	}
	if req.MimeType == "" {
		req.MimeType = "image/png"
	}
	image, err := s.gemini.EditImage(r.Context(), s.imageModel, req.ImageBase64, req.MimeType, req.Prompt)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"imageBase64": base64.StdEncoding.EncodeToString(image),
		"mimeType":    "image/png",
	})
}

func (s *Server) handleStudioVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowAI(w, r) {
		return
	}
	var req struct {
		Prompt      string `json:"prompt"`
		ImageBase64 string `json:"imageBase64"`
		AspectRatio string `json:"aspectRatio"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	uri, err := s.gemini.GenerateVideo(r.Context(), s.videoModel, req.Prompt, req.ImageBase64, req.AspectRatio)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"videoUrl": uri})
}

// drive backup

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "drive backup is not configured")
		return
	}
	info, err := s.backups.Backup(r.Context())
	if err != nil {
		slog.Error("backup failed", "error", err)
		writeError(w, http.StatusBadGateway, "backup failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "drive backup is not configured")
		return
	}
	snapshot, err := s.backups.Restore(r.Context())
	if err != nil {
		if errors.Is(err, backup.ErrNoBackup) {
			writeError(w, http.StatusNotFound, "no backup file found")
			return
		}
		slog.Error("restore failed", "error", err)
		writeError(w, http.StatusBadGateway, "restore failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":    len(snapshot.Records),
		"meds":       len(snapshot.Meds),
		"backupDate": snapshot.BackupDate,
	})
}
