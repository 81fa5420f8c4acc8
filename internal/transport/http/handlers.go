package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"filedrop/internal/application/auth"
	appmedia "filedrop/internal/application/media"
	mediadomain "filedrop/internal/domain/media"
	"filedrop/internal/domain/upload"
	"filedrop/internal/logging"
)

const (
	uploadField         = "file"
	multipartMemory     = 32 << 20
	defaultUploadLimit  = 2 << 30
	fallbackContentType = "application/octet-stream"
)

type mediaUseCases interface {
	ListFiles() []upload.Record
	HandleUpload(ctx context.Context, uploader string, file appmedia.IncomingFile) (mediadomain.UploadResult, error)
	OpenFile(name string) (*os.File, os.FileInfo, error)
	DeleteFile(name string) error
}

type authUseCases interface {
	ProviderName() string
	SessionTTL() time.Duration
	StateTTL() time.Duration
	BeginLogin(remoteAddr string) (string, string, error)
	CompleteLogin(ctx context.Context, code, stateParam, stateToken string) (auth.Principal, string, error)
	Authenticate(token string) (auth.Principal, error)
}

// Options configures a Handler.
type Options struct {
	// PublicBaseURL prefixes share links, e.g. http://files.example.com:3001.
	PublicBaseURL  string
	MaxUploadBytes int64
	SecureCookies  bool
}

type Handler struct {
	media   mediaUseCases
	auth    authUseCases
	baseURL string
	limit   int64
	secure  bool
}

// NewHandler wires HTTP handlers with application use cases.
func NewHandler(mediaService mediaUseCases, authService authUseCases, opts Options) *Handler {
	limit := opts.MaxUploadBytes
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	return &Handler{
		media:   mediaService,
		auth:    authService,
		baseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		limit:   limit,
		secure:  opts.SecureCookies,
	}
}

type fileEntry struct {
	Filename    string `json:"filename"`
	Uploader    string `json:"uploader"`
	URL         string `json:"url"`
	IsHLS       bool   `json:"isHLS"`
	IsStreaming bool   `json:"isStreaming"`
	HLSURL      string `json:"hlsUrl,omitempty"`
}

// ListFiles handles GET /files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	records := h.media.ListFiles()

	resp := make([]fileEntry, 0, len(records))
	for _, rec := range records {
		entry := fileEntry{
			Filename:    rec.Filename,
			Uploader:    rec.Uploader,
			IsHLS:       rec.IsStreaming,
			IsStreaming: rec.IsStreaming,
		}
		if rec.IsStreaming {
			entry.HLSURL = h.baseURL + rec.StreamManifestPath
			entry.URL = h.baseURL + "/player.html?video=" + url.QueryEscape(entry.HLSURL)
		} else {
			entry.URL = h.baseURL + "/files/" + url.PathEscape(rec.Filename)
		}
		resp = append(resp, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /download/{filename}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	file, info, err := h.media.OpenFile(name)
	if err != nil {
		h.fileError(w, r, name, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	streamFile(w, r, file, info, contentTypeFor(info.Name()))
}

// PublicFile handles GET /files/{filename}, the share link target.
func (h *Handler) PublicFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	file, info, err := h.media.OpenFile(name)
	if err != nil {
		h.fileError(w, r, name, err)
		return
	}
	defer file.Close()

	streamFile(w, r, file, info, contentTypeFor(info.Name()))
}

// Upload handles POST /upload with a single multipart field "file".
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	logger := logging.WithContext(r.Context())

	if r.ContentLength > h.limit {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logger.Info("received upload",
		zap.String("filename", header.Filename),
		zap.String("content_type", header.Header.Get("Content-Type")),
		zap.Int64("size", header.Size))

	_, err = h.media.HandleUpload(r.Context(), principal.Username, appmedia.IncomingFile{
		Filename: header.Filename,
		Content:  file,
	})
	if errors.Is(err, mediadomain.ErrInvalidFileName) {
		http.Error(w, "Invalid file name", http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
		http.Error(w, "Error processing upload", http.StatusInternalServerError)
		return
	}

	writeText(w, http.StatusOK, "File uploaded successfully")
}

// Delete handles DELETE /delete/{filename}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	err := h.media.DeleteFile(name)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "File deleted successfully")
	case errors.Is(err, mediadomain.ErrInvalidFileName):
		http.Error(w, "Invalid file name", http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "File not found", http.StatusNotFound)
	default:
		logging.WithContext(r.Context()).Error("error deleting file", zap.String("filename", name), zap.Error(err))
		http.Error(w, "Error deleting file", http.StatusInternalServerError)
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fileError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, mediadomain.ErrInvalidFileName) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	logging.WithContext(r.Context()).Error("open file", zap.String("filename", name), zap.Error(err))
	http.Error(w, "Error reading file", http.StatusInternalServerError)
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return fallbackContentType
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
