package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"flowgate/pkg/models"
)

func TestHTTPClient_CreateWorkflow(t *testing.T) {
	var gotDoc RemoteWorkflow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-42"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "secret-key", 5*time.Second)
	id, err := client.CreateWorkflow(context.Background(), &RemoteWorkflow{Name: "wf"})

	assert.NoError(t, err)
	assert.Equal(t, "remote-42", id)
	assert.Equal(t, "wf", gotDoc.Name)
}

func TestHTTPClient_CreateWorkflowWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	_, err := client.CreateWorkflow(context.Background(), &RemoteWorkflow{Name: "wf"})

	assert.True(t, models.IsRemoteEngine(err))
}

func TestHTTPClient_UpdateWorkflowNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	err := client.UpdateWorkflow(context.Background(), "gone", &RemoteWorkflow{Name: "wf"})

	assert.True(t, models.IsRemoteNotFound(err))
}

func TestHTTPClient_ServerErrorIsNotNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	err := client.Activate(context.Background(), "remote-42")

	assert.True(t, models.IsRemoteEngine(err))
	assert.False(t, models.IsRemoteNotFound(err))
}

func TestHTTPClient_Resume(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 5*time.Second)
	err := client.Resume(context.Background(), "exec-7", DecisionAbort, "rejected by reviewer")

	assert.NoError(t, err)
	assert.Equal(t, "/api/v1/executions/exec-7/resume", gotPath)
	assert.Equal(t, "abort", gotBody["decision"])
	assert.Equal(t, "rejected by reviewer", gotBody["feedback"])
}

func TestHTTPClient_UnreachableEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPClient(server.URL, "", time.Second)
	err := client.Deactivate(context.Background(), "remote-42")

	assert.True(t, models.IsRemoteEngine(err))
}
