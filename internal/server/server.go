package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arkeep/internal/api"
	"arkeep/internal/articles"
	"arkeep/internal/migrate"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	"arkeep/internal/session"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is a local JSON front-door over the article service, so a
// browser UI can drive the same dual-mode data layer the CLI uses.
type Server struct {
	articles *articles.Service
	migrator *migrate.Coordinator
	sessions *session.Store
	logger   *zap.Logger
	router   *mux.Router
	server   *http.Server
}

func NewServer(svc *articles.Service, migrator *migrate.Coordinator, sessions *session.Store, logger *zap.Logger) *Server {
	s := &Server{
		articles: svc,
		migrator: migrator,
		sessions: sessions,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/articles", s.handleList).Methods("GET")
	s.router.HandleFunc("/articles", s.handleCreate).Methods("POST")
	s.router.HandleFunc("/articles/facets", s.handleFacets).Methods("GET")
	s.router.HandleFunc("/articles/{id}", s.handleUpdate).Methods("PATCH")
	s.router.HandleFunc("/articles/{id}", s.handleDelete).Methods("DELETE")
	s.router.HandleFunc("/migrate", s.handleMigrate).Methods("POST")
	s.router.HandleFunc("/session", s.handleSession).Methods("GET")
}

// Start launches the HTTP server
func (s *Server) Start(port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Front-door listening", zap.String("addr", port))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	params := model.ListParams{
		Sort:     model.Sort(r.URL.Query().Get("sort")),
		Q:        r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
		Domain:   r.URL.Query().Get("domain"),
	}
	if v := r.URL.Query().Get("isRead"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, badRequest("isRead must be true or false"))
			return
		}
		params.IsRead = &isRead
	}
	if v := r.URL.Query().Get("page"); v != "" {
		params.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("size"); v != "" {
		params.Size, _ = strconv.Atoi(v)
	}

	page, err := s.articles.List(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	facets, err := s.articles.Facets(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, facets)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input model.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, badRequest("Invalid request body"))
		return
	}
	if !strings.HasPrefix(input.URL, "http://") && !strings.HasPrefix(input.URL, "https://") {
		s.writeError(w, badRequest("URL must start with http:// or https://"))
		return
	}

	article, err := s.articles.Create(r.Context(), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, article)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, badRequest("Invalid request parameter"))
		return
	}
	var input model.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, badRequest("Invalid request body"))
		return
	}

	article, err := s.articles.Update(r.Context(), id, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, article)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, badRequest("Invalid request parameter"))
		return
	}
	if err := s.articles.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	report, err := s.migrator.Run(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get()
	if sess == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         sess.Email,
		"name":          sess.Name,
		"pictureUrl":    sess.PictureURL,
	})
}

type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func badRequest(message string) error {
	return &api.Error{Status: http.StatusBadRequest, Message: message}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Message: "Unexpected server error"}

	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
		body = errorBody{Code: apiErr.Code, Message: apiErr.Message}
	case errors.Is(err, mirror.ErrNotFound):
		status = http.StatusNotFound
		body = errorBody{Code: "NOT_FOUND", Message: "Article not found"}
	case errors.Is(err, mirror.ErrDuplicate):
		status = http.StatusConflict
		body = errorBody{Code: "CONFLICT", Message: "Article already saved"}
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}
