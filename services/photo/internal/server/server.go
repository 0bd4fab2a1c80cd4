package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"openbooks/internal/ratelimit"
	"openbooks/internal/util"
	"openbooks/pkg/domain"
	"openbooks/pkg/storage"
	"openbooks/services/photo/internal/app"
)

const (
	defaultMaxUploadBytes = 6 << 20
	maxJSONBodyBytes      = 2 << 20
	defaultReadyTimeout   = time.Second
)

// ServiceStatus is one line of the deployment summary shown by /api/status.
type ServiceStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Dot   string `json:"dot"`
	Note  string `json:"note,omitempty"`
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Uploader storage.Uploader
	// UploadDir is served under /uploads/ when set.
	UploadDir      string
	MaxUploadBytes int64
	// UploadLimiter is optional; nil disables upload rate limiting.
	UploadLimiter  *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	ReadyTimeout   time.Duration
	Services       []ServiceStatus
}

// Server exposes the photo API.
type Server struct {
	app            *app.App
	uploader       storage.Uploader
	mux            *http.ServeMux
	maxUploadBytes int64
	uploadLimiter  *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	readyTimeout   time.Duration
	services       []ServiceStatus
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Uploader == nil {
		return nil, errors.New("uploader is required")
	}
	s := &Server{
		app:            cfg.App,
		uploader:       cfg.Uploader,
		mux:            http.NewServeMux(),
		maxUploadBytes: cfg.MaxUploadBytes,
		uploadLimiter:  cfg.UploadLimiter,
		trustedProxies: cfg.TrustedProxies,
		readyTimeout:   cfg.ReadyTimeout,
		services:       cfg.Services,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = defaultReadyTimeout
	}
	s.routes(cfg.UploadDir)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("photo", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes(uploadDir string) {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("GET /api/status", s.ready(s.handleStatus))

	// demo session
	s.mux.Handle("GET /api/auth/me", s.ready(s.handleMe))
	s.mux.Handle("POST /api/auth/switch", s.ready(s.handleSwitch))
	s.mux.Handle("POST /api/auth/update", s.ready(s.handleUpdateProfile))

	// users
	s.mux.Handle("GET /api/users", s.ready(s.handleListUsers))
	s.mux.Handle("POST /api/users", s.ready(s.handleCreateUser))
	s.mux.Handle("DELETE /api/users/{id}", s.ready(s.handleDeleteUser))

	// posts
	s.mux.Handle("GET /api/posts", s.ready(s.handleListPosts))
	s.mux.Handle("POST /api/posts", s.ready(s.handleUpload))
	s.mux.Handle("GET /api/posts/{id}", s.ready(s.handleGetPost))
	s.mux.Handle("POST /api/posts/{id}/like", s.ready(s.handleLike))
	s.mux.Handle("POST /api/posts/{id}/rate", s.ready(s.handleRate))
	s.mux.Handle("POST /api/posts/{id}/comments", s.ready(s.handleComment))

	// admin
	s.mux.Handle("POST /api/admin/reset", s.ready(s.handleReset))
	s.mux.Handle("POST /api/admin/posts/{id}/status", s.ready(s.handleTogglePostStatus))
	s.mux.Handle("DELETE /api/admin/posts/{id}", s.ready(s.handleDeletePost))
	s.mux.Handle("GET /api/admin/export", s.ready(s.handleExport))

	if uploadDir != "" {
		s.mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", staticFiles(uploadDir)))
	}
}

// ready holds a request until the initial load finishes, up to readyTimeout.
func (s *Server) ready(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.WaitReady(r.Context(), s.readyTimeout); err != nil {
			util.LoggerFromContext(r.Context()).Warn("store not ready", "err", err)
			writeError(w, http.StatusServiceUnavailable, "DB not ready yet. Please refresh.")
			return
		}
		next(w, r)
	})
}

func staticFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	app.Status
	Services []ServiceStatus `json:"services"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Status(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	services := s.services
	if services == nil {
		services = []ServiceStatus{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: st, Services: services})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.app.Me()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

type switchRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.SwitchUser(r.Context(), req.UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type userRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.UpdateProfile(r.Context(), req.Name, req.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.ListUsers())
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.CreateUser(r.Context(), req.Name, req.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.app.ListPosts()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.app.GetPost(r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleUpload checks the role before reading the body, stores the image,
// then records the post.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.app.AuthorizeCreator(); err != nil {
		writeAppError(w, r, err)
		return
	}
	if !s.allowUpload(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	if header.Size > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); byExt != "" {
			contentType = byExt
		}
	}
	imageURL, err := s.uploader.Upload(r.Context(), header.Filename, file, header.Size, contentType)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("image upload failed", "err", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "image upload failed")
		return
	}

	post, err := s.app.CreatePost(r.Context(), app.NewPost{
		Title:    r.FormValue("title"),
		ImageURL: imageURL,
		Caption:  r.FormValue("caption"),
		Location: r.FormValue("location"),
		People:   r.FormValue("people"),
		Tags:     r.FormValue("tags"),
	})
	if err != nil {
		// The role can change between AuthorizeCreator and CreatePost.
		util.LoggerFromContext(r.Context()).Warn("uploaded image left unreferenced", "image_url", imageURL, "err", err)
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) allowUpload(w http.ResponseWriter, r *http.Request) bool {
	if s.uploadLimiter == nil {
		return true
	}
	key := "upload|" + util.ClientIP(r, s.trustedProxies)
	ok, err := s.uploadLimiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("upload rate limit check failed", "err", err)
	}
	if ok {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many uploads, try again later")
	return false
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	post, err := s.app.ToggleLike(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type rateRequest struct {
	Rating json.RawMessage `json:"rating"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// NaN fails the range check in the app and is reported as a validation error.
	rating, ok := parseRating(req.Rating)
	if !ok {
		rating = math.NaN()
	}
	post, err := s.app.Rate(r.Context(), r.PathValue("id"), rating)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := s.app.AddComment(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type okResponse struct {
	OK     bool              `json:"ok"`
	Status domain.PostStatus `json:"status,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Reset(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleTogglePostStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.app.TogglePostStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Status: status})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeletePost(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	agg, err := s.app.Export()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// parseRating accepts a JSON number or a numeric string.
func parseRating(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStatus(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps domain sentinels to HTTP statuses. Anything unrecognized
// is a transport failure and is reported without internal detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, message(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, message(err, domain.ErrForbidden))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, message(err, domain.ErrNotFound))
	case errors.Is(err, app.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "DB not ready yet. Please refresh.")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// message strips the sentinel prefix so clients see only the detail.
func message(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "PHOTO_INVALID_REQUEST"
	case http.StatusForbidden:
		return "PHOTO_FORBIDDEN"
	case http.StatusNotFound:
		return "PHOTO_NOT_FOUND"
	case http.StatusRequestEntityTooLarge:
		return "PHOTO_FILE_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_NOT_READY"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return fmt.Sprintf("HTTP_%d", status)
	}
}
