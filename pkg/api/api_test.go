package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/queue"
	"github.com/chartfarm/chartfarm/pkg/service"
	"github.com/chartfarm/chartfarm/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Queue) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chartfarm.db")
	logger := zap.NewNop().Sugar()
	s, err := store.Open(context.Background(), "sqlite://"+path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := queue.New(s, logger)
	server := &Server{
		Users:       service.NewUsers(s, logger),
		Products:    service.NewProducts(s, logger),
		Templates:   service.NewTemplates(s, logger),
		Deployments: service.NewDeployments(s, q, logger),
		Jobs:        q,
		Logger:      logger,
	}
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, q
}

func doJSON(t *testing.T, method, url string, body interface{}, into interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

func TestUserEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var user model.User
	resp := doJSON(t, http.MethodPost, ts.URL+"/users",
		map[string]interface{}{"email": "alice@example.com"}, &user)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotZero(t, user.ID)

	// Duplicate email maps to 409.
	resp = doJSON(t, http.MethodPost, ts.URL+"/users",
		map[string]interface{}{"email": "alice@example.com"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var users []model.User
	resp = doJSON(t, http.MethodGet, ts.URL+"/users", nil, &users)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, users, 1)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/users/%d", ts.URL, user.ID), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/users/99999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/users/%d", ts.URL, user.ID), nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestMalformedBodyIsConflict(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/users", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestNonNumericIDIs404(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/users/abc", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeploymentFlowOverHTTP(t *testing.T) {
	ts, jobQueue := newTestServer(t)

	var user model.User
	doJSON(t, http.MethodPost, ts.URL+"/users", map[string]interface{}{"email": "alice@example.com"}, &user)
	var product model.Product
	doJSON(t, http.MethodPost, ts.URL+"/products", map[string]interface{}{"name": "wiki"}, &product)

	var template model.Template
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/products/%d/templates", ts.URL, product.ID),
		map[string]interface{}{
			"chart_ref":     "oci://registry.local/charts/wiki",
			"chart_version": "1.0.0",
		}, &template)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/products/%d/canonical-template", ts.URL, product.ID),
		map[string]interface{}{"template_id": template.ID}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var deployment model.Deployment
	resp = doJSON(t, http.MethodPost, ts.URL+"/deployments",
		map[string]interface{}{
			"user_id":             user.ID,
			"desired_template_id": template.ID,
			"domainname":          "alice-wiki.example.com",
		}, &deployment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, model.StatusProvisioning, deployment.Status)
	assert.NotEmpty(t, deployment.DeploymentUID)

	// The create job is visible on the jobs surface.
	var jobs []model.ReconcileJob
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/jobs?deployment_id=%d", ts.URL, deployment.ID), nil, &jobs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.ReasonCreate, jobs[0].Reason)

	// An upgrade while the create job is open maps to 409.
	var next model.Template
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/products/%d/templates", ts.URL, product.ID),
		map[string]interface{}{
			"chart_ref":     "oci://registry.local/charts/wiki",
			"chart_version": "1.1.0",
		}, &next)
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/deployments/%d", ts.URL, deployment.ID),
		map[string]interface{}{
			"user_id":             user.ID,
			"desired_template_id": next.ID,
		}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var detail model.DeploymentDetail
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/deployments/%d?user_id=%d", ts.URL, deployment.ID, user.ID), nil, &detail)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, deployment.ID, detail.Deployment.ID)
	require.NotNil(t, detail.DesiredTemplate)

	// Another user cannot see it.
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/deployments/%d?user_id=%d", ts.URL, deployment.ID, user.ID+1), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var list []model.DeploymentDetail
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/deployments?user_id=%d", ts.URL, user.ID), nil, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 1)

	resp = doJSON(t, http.MethodGet, ts.URL+"/deployments", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Resolve the open create job so the delete can enqueue its own.
	require.NoError(t, jobQueue.MarkDone(context.Background(), jobs[0].ID))

	var deleted model.Deployment
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/deployments/%d?user_id=%d", ts.URL, deployment.ID, user.ID), nil, &deleted)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusDeleting, deleted.Status)
}
