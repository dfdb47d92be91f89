// Package api exposes the media service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/auth"
	"github.com/fruitsalade/mediavault/internal/bytesize"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/metrics"
)

const (
	multipartMemory = 32 << 20
	formOverhead    = 1 << 20
	maxSearchLength = 255
)

// Server handles media HTTP requests.
type Server struct {
	media *media.Service
	auth  *auth.Auth
}

// NewServer creates a new API server.
func NewServer(svc *media.Service, a *auth.Auth) *Server {
	return &Server{media: svc, auth: a}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/media", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/", s.handleList)
		r.Post("/", s.handleStore)
		r.Get("/directories", s.handleDirectories)
		r.Post("/folders", s.handleCreateFolder)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := media.ListQuery{
		Dir:    q.Get("dir"),
		Search: q.Get("q"),
	}
	if len(query.Search) > maxSearchLength {
		s.sendError(w, http.StatusUnprocessableEntity, fmt.Sprintf("q may not be longer than %d characters", maxSearchLength))
		return
	}

	var err error
	if query.Page, err = intParam(q.Get("page"), 1, 0); err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, "page: "+err.Error())
		return
	}
	if query.PerPage, err = intParam(q.Get("per_page"), 1, 100); err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, "per_page: "+err.Error())
		return
	}

	page, err := s.media.List(r.Context(), query)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, page)
}

// intParam parses an optional integer in [min, max]; max 0 means unbounded.
// An empty value yields 0 so the service applies its default.
func intParam(v string, min, max int) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			return 0, fmt.Errorf("must be between %d and %d", min, max)
		}
		return 0, fmt.Errorf("must be at least %d", min)
	}
	return n, nil
}

func (s *Server) handleDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := s.media.Directories(r.Context())
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, dirs)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	maxSize := s.media.Config().MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.handleServiceError(w, r, media.ErrFileTooLarge)
			return
		}
		s.sendError(w, http.StatusUnprocessableEntity, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	dir := r.FormValue("dir")
	if dir == "" {
		s.sendError(w, http.StatusUnprocessableEntity, "The dir field is required.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, "Please choose an image to upload.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	res, err := s.media.Ingest(r.Context(), media.IngestRequest{
		Directory:        dir,
		Filename:         r.FormValue("filename"),
		OriginalFilename: header.Filename,
		Data:             data,
		Principal:        auth.GetPrincipal(r.Context()),
	})
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if res.Conflict != nil {
		options := make(map[string]bool, len(res.Conflict.Options))
		for _, o := range res.Conflict.Options {
			options[string(o)] = true
		}
		s.sendJSON(w, http.StatusConflict, map[string]interface{}{
			"message":   "Duplicate detected",
			"duplicate": res.Conflict.Existing,
			"options":   options,
		})
		return
	}
	s.sendJSON(w, http.StatusCreated, res.Asset)
}

type createFolderRequest struct {
	ParentDir string `json:"parent_dir"`
	Name      string `json:"name"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, formOverhead)).Decode(&req); err != nil {
			s.sendError(w, http.StatusUnprocessableEntity, "invalid JSON body")
			return
		}
	} else {
		req.ParentDir = r.FormValue("parent_dir")
		req.Name = r.FormValue("name")
	}
	if strings.TrimSpace(req.ParentDir) == "" {
		s.sendError(w, http.StatusUnprocessableEntity, "The parent_dir field is required.")
		return
	}

	created, err := s.media.CreateDirectory(r.Context(), req.ParentDir, req.Name, auth.GetPrincipal(r.Context()))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{
		"path": created,
		"name": path.Base(created),
	})
}

// handleServiceError maps media errors to HTTP responses.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *media.UnauthorizedError
	switch {
	case errors.As(err, &ue) && ue.Anonymous():
		s.sendError(w, http.StatusUnauthorized, "Authentication required.")
	case errors.As(err, &ue):
		s.sendJSON(w, http.StatusForbidden, map[string]interface{}{
			"message":        "You do not have permission to upload to this directory.",
			"dir":            ue.Directory,
			"root":           ue.Root,
			"required_roles": ue.RequiredRoles,
		})
	case errors.Is(err, media.ErrUnsupportedMediaType):
		s.sendError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, media.ErrFileTooLarge):
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("The image exceeds the maximum allowed size of %s.", bytesize.Format(s.media.Config().MaxFileSize)))
	case errors.Is(err, media.ErrInvalidPath),
		errors.Is(err, media.ErrEmptyFile),
		errors.Is(err, media.ErrInvalidFilename),
		errors.Is(err, media.ErrInvalidFolderName):
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logging.WithContext(r.Context()).Error("media request failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, map[string]interface{}{
		"message": message,
		"code":    code,
	})
}
