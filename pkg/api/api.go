// Package api exposes the REST surface over the core services. It parses
// requests, invokes service operations and maps the error taxonomy onto
// status codes; it holds no business logic of its own.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/queue"
	"github.com/chartfarm/chartfarm/pkg/service"
)

type Server struct {
	Users       *service.Users
	Products    *service.Products
	Templates   *service.Templates
	Deployments *service.Deployments
	Jobs        *queue.Queue
	Logger      *zap.SugaredLogger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.createUser)
		r.Get("/", s.listUsers)
		r.Get("/{id}", s.getUser)
		r.Delete("/{id}", s.deleteUser)
	})
	r.Route("/products", func(r chi.Router) {
		r.Post("/", s.createProduct)
		r.Get("/", s.listProducts)
		r.Get("/{id}", s.getProduct)
		r.Delete("/{id}", s.deleteProduct)
		r.Post("/{id}/templates", s.createTemplate)
		r.Get("/{id}/templates", s.listTemplates)
		r.Put("/{id}/canonical-template", s.setCanonicalTemplate)
	})
	r.Route("/deployments", func(r chi.Router) {
		r.Post("/", s.createDeployment)
		r.Get("/", s.listDeployments)
		r.Get("/{id}", s.getDeployment)
		r.Put("/{id}", s.updateDeployment)
		r.Delete("/{id}", s.deleteDeployment)
	})
	r.Get("/jobs", s.listJobs)

	return r
}

// writeError maps the core error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case app.IsNotFound(err):
		status = http.StatusNotFound
	case app.IsIntegrity(err), app.IsInProgress(err):
		status = http.StatusConflict
	default:
		s.Logger.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, app.NewNotFound("resource")
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func decode(r *http.Request, into interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return app.NewIntegrity("invalid request body: %s", err)
	}
	return nil
}
