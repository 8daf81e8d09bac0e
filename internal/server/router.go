// Package server is recipesd: the sign-in flow and the document API that the
// recipebox http backend talks to.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/idilsaglam/recipebox/internal/config"
	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/model"
)

type Server struct {
	cfg    config.Server
	docs   docstore.Store
	tokens *TokenStore
	log    *log.Logger
	now    func() time.Time
}

func New(cfg config.Server, docs docstore.Store, logger *log.Logger) *Server {
	return &Server{
		cfg:    cfg,
		docs:   docs,
		tokens: NewTokenStore(),
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverer, s.requestLogger)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login/start", s.startLogin).Methods(http.MethodPost)
	r.HandleFunc("/login/authorize", s.authorize).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/auth/login/exchange", s.exchange).Methods(http.MethodPost)
	r.Handle("/api/auth/whoami", s.requireAuth(http.HandlerFunc(s.whoami))).Methods(http.MethodGet)
	r.Handle("/api/auth/signout", s.requireAuth(http.HandlerFunc(s.signOut))).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/{collection}", s.listDocuments).Methods(http.MethodGet)
	api.HandleFunc("/{collection}", s.createDocument).Methods(http.MethodPost)
	api.HandleFunc("/{collection}/{id}", s.getDocument).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/{id}", s.deleteDocument).Methods(http.MethodDelete)

	return r
}

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

func userFrom(ctx context.Context) model.User {
	u, _ := ctx.Value(userKey).(model.User)
	return u
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, prefix))
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpErrorJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.tokens.Validate(token, s.now())
		if err != nil {
			httpErrorJSON(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error("panic in handler", "path", r.URL.Path, "panic", v)
				httpErrorJSON(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpErrorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(msg)})
}
