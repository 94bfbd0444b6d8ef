package api

import (
	"net/http"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/service"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email   string `json:"email"`
		IsAdmin bool   `json:"is_admin"`
	}
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.Users.Create(r.Context(), payload.Email, payload.IsAdmin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Users.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	user, err := s.Users.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Users.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name        string  `json:"name"`
		Description *string `json:"description,omitempty"`
	}
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	product, err := s.Products.Create(r.Context(), payload.Name, payload.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	product, err := s.Products.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Products.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var payload service.TemplateCreate
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	payload.ProductID = productID
	template, err := s.Templates.Create(r.Context(), payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, template)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	templates, err := s.Templates.ListByProduct(r.Context(), productID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) setCanonicalTemplate(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var payload struct {
		TemplateID int64 `json:"template_id"`
	}
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Products.SetCanonicalTemplate(r.Context(), productID, payload.TemplateID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createDeployment(w http.ResponseWriter, r *http.Request) {
	var payload service.DeploymentCreate
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	deployment, err := s.Deployments.Create(r.Context(), payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deployment)
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "user_id")
	if userID == 0 {
		s.writeError(w, app.NewIntegrity("user_id query parameter is required"))
		return
	}
	deployments, err := s.Deployments.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployments)
}

func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	userID := queryInt64(r, "user_id")
	detail, err := s.Deployments.Get(r.Context(), id, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) updateDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var payload service.DeploymentUpdate
	if err := decode(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	payload.ID = id
	deployment, err := s.Deployments.Update(r.Context(), payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) deleteDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	userID := queryInt64(r, "user_id")
	deployment, err := s.Deployments.Delete(r.Context(), id, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := int(queryInt64(r, "limit"))
	if limit <= 0 {
		limit = 100
	}
	jobs, err := s.Jobs.ListJobs(r.Context(), r.URL.Query().Get("status"), queryInt64(r, "deployment_id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
