package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/audiorec/internal/audio"
	"github.com/audiolibrelab/audiorec/internal/recording"
	"github.com/audiolibrelab/audiorec/internal/service"
	"github.com/audiolibrelab/audiorec/internal/settings"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the recorder library over a JSON API
type Server struct {
	service service.Service
	port    string
	mux     *http.ServeMux
}

// StatusResponse is the capture state plus the last user-facing error
type StatusResponse struct {
	audio.SessionStatus
	Elapsed string `json:"elapsed"`
	Error   string `json:"error,omitempty"`
}

// StorageResponse adds human readable sizes to the storage info
type StorageResponse struct {
	recording.StorageInfo
	UsedHuman      string `json:"usedHuman"`
	AvailableHuman string `json:"availableHuman"`
	TotalHuman     string `json:"totalHuman"`
}

type StatisticsResponse struct {
	recording.Statistics
	TotalDurationHuman string `json:"totalDurationHuman"`
	TotalSizeHuman     string `json:"totalSizeHuman"`
}

// BulkDeleteRequest lists the recordings to delete in one call
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type StartRequest struct {
	Quality recording.Quality `json:"quality"`
}

type StopRequest struct {
	Title string `json:"title"`
}

type ThemeRequest struct {
	Theme settings.Theme `json:"theme"`
}

// New creates a new web server instance
func New(svc service.Service, port string) *Server {
	s := &Server{
		service: svc,
		port:    port,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/recordings", s.handleList)
	s.mux.HandleFunc("POST /api/recordings/delete", s.handleBulkDelete)
	s.mux.HandleFunc("GET /api/recordings/{id}", s.handleGet)
	s.mux.HandleFunc("PATCH /api/recordings/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /api/recordings/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /api/recordings/{id}/stream", s.handleStream)
	s.mux.HandleFunc("POST /api/recordings/{id}/export", s.handleExport)
	s.mux.HandleFunc("GET /api/favorites", s.handleFavorites)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)

	s.mux.HandleFunc("POST /api/record/start", s.handleStartRecording)
	s.mux.HandleFunc("POST /api/record/pause", s.handlePauseRecording)
	s.mux.HandleFunc("POST /api/record/resume", s.handleResumeRecording)
	s.mux.HandleFunc("POST /api/record/stop", s.handleStopRecording)
	s.mux.HandleFunc("POST /api/record/cancel", s.handleCancelRecording)
	s.mux.HandleFunc("GET /api/record/status", s.handleStatus)

	s.mux.HandleFunc("GET /api/stats", s.handleStatistics)
	s.mux.HandleFunc("GET /api/storage", s.handleStorage)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handleSaveSettings)
	s.mux.HandleFunc("DELETE /api/settings", s.handleResetSettings)
	s.mux.HandleFunc("GET /api/theme", s.handleGetTheme)
	s.mux.HandleFunc("PUT /api/theme", s.handleSaveTheme)
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting AudioRec Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleList applies the q, sort and order parameters and returns the list
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()
	current := s.service.Snapshot()

	by, order := current.SortBy, current.SortOrder
	if v := params.Get("sort"); v != "" {
		parsed, err := recording.ParseSortOption(v)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "list")
			return
		}
		by = parsed
	}
	if v := params.Get("order"); v != "" {
		parsed, err := recording.ParseSortOrder(v)
		if err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "list")
			return
		}
		order = parsed
	}

	var err error
	if params.Has("q") {
		err = s.service.SearchRecordings(ctx, params.Get("q"))
		if err == nil && (by != current.SortBy || order != current.SortOrder) {
			err = s.service.SortRecordings(ctx, by, order)
		}
	} else {
		err = s.service.SortRecordings(ctx, by, order)
	}
	if err != nil {
		slog.Warn("Recordings refresh failed, serving previous list", "error", err)
	}
	writeJSON(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd recording.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "update", "error", err)
		return
	}
	upd.ID = r.PathValue("id")

	if _, err := s.service.GetRecording(r.Context(), upd.ID); err != nil {
		s.sendServiceError(w, err, "update")
		return
	}
	if err := s.service.UpdateRecording(r.Context(), upd); err != nil {
		s.sendServiceError(w, err, "update")
		return
	}
	rec, err := s.service.GetRecording(r.Context(), upd.ID)
	if err != nil {
		s.sendServiceError(w, err, "update")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteRecording(r.Context(), id); err != nil {
		s.sendServiceError(w, err, "delete", "id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "bulk_delete", "error", err)
		return
	}
	if len(req.IDs) == 0 {
		s.sendErrorResponse(w, http.StatusBadRequest, "ids is required", "operation", "bulk_delete")
		return
	}
	deleted, err := s.service.DeleteRecordings(r.Context(), req.IDs)
	if err != nil {
		s.sendServiceError(w, err, "bulk_delete", "count", len(req.IDs))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "deleted": deleted})
}

// handleStream serves the audio file with range support
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, err, "stream")
		return
	}

	file, err := os.Open(rec.Location)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error opening file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(rec.Location))
	if contentType == "" {
		contentType = "audio/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, filepath.Base(rec.Location), info.ModTime(), file)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.service.ExportRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, err, "export")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": path})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Favorites(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "favorites")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.Categories(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "start_recording", "error", err)
			return
		}
	}
	if req.Quality != "" {
		if _, err := recording.ParseQuality(string(req.Quality)); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "start_recording")
			return
		}
	}

	slog.Info("Server: starting recording", "quality", req.Quality)
	if err := s.service.StartRecording(r.Context(), req.Quality); err != nil {
		s.sendServiceError(w, err, "start_recording")
		return
	}
	s.writeStatus(w)
}

func (s *Server) handlePauseRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.PauseRecording(r.Context()); err != nil {
		s.sendServiceError(w, err, "pause_recording")
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleResumeRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ResumeRecording(r.Context()); err != nil {
		s.sendServiceError(w, err, "resume_recording")
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "stop_recording", "error", err)
			return
		}
	}
	rec, err := s.service.FinishRecording(r.Context(), req.Title)
	if err != nil {
		s.sendServiceError(w, err, "stop_recording")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleCancelRecording(w http.ResponseWriter, r *http.Request) {
	s.service.CancelRecording(r.Context())
	s.writeStatus(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w)
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	st := s.service.RecordingStatus()
	writeJSON(w, http.StatusOK, StatusResponse{
		SessionStatus: st,
		Elapsed:       recording.FormatDuration(st.DurationMillis),
		Error:         s.service.GetLastError(),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Statistics(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "statistics")
		return
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{
		Statistics:         stats,
		TotalDurationHuman: recording.FormatDuration(stats.TotalDurationMillis),
		TotalSizeHuman:     recording.FormatBytes(stats.TotalSize),
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	info := s.service.StorageInfo()
	writeJSON(w, http.StatusOK, StorageResponse{
		StorageInfo:    info,
		UsedHuman:      recording.FormatBytes(int64(info.Used)),
		AvailableHuman: recording.FormatBytes(int64(info.Available)),
		TotalHuman:     recording.FormatBytes(int64(info.Total)),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.Settings(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "get_settings")
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "save_settings", "error", err)
		return
	}
	saved, err := s.service.SaveSettings(r.Context(), patch)
	if err != nil {
		s.sendServiceError(w, err, "save_settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	defaults, err := s.service.ResetSettings(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "reset_settings")
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.service.Theme(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "get_theme")
		return
	}
	writeJSON(w, http.StatusOK, ThemeRequest{Theme: theme})
}

func (s *Server) handleSaveTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "save_theme", "error", err)
		return
	}
	if err := s.service.SaveTheme(r.Context(), req.Theme); err != nil {
		s.sendServiceError(w, err, "save_theme")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// sendServiceError maps service errors onto HTTP status codes
func (s *Server) sendServiceError(w http.ResponseWriter, err error, operation string, logContext ...interface{}) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, recording.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, audio.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, audio.ErrInvalidState), errors.Is(err, audio.ErrNoActiveSession):
		status = http.StatusConflict
	}
	s.sendErrorResponse(w, status, err.Error(), append([]interface{}{"operation", operation}, logContext...)...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Debug("Sending error response to client", logFields...)
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write JSON response", "error", err)
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
