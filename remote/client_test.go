package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedRequest captures one delivery seen by the fake service.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeService struct {
	mu       sync.Mutex
	requests []recordedRequest
	launchID string
}

func (s *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
		})
		s.mu.Unlock()

		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/proj/launch" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": s.launchID})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *fakeService) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func newTestClient(t *testing.T, svc *fakeService) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		Endpoint: srv.URL,
		Project:  "proj",
		APIKey:   "secret-token",
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, srv
}

func TestClientStartLaunchSynchronous(t *testing.T) {
	svc := &fakeService{launchID: "launch-1"}
	client, _ := newTestClient(t, svc)

	id, err := client.StartLaunch(context.Background(), "nightly", time.Now(), map[string]string{"env": "ci"})
	require.NoError(t, err)
	assert.Equal(t, "launch-1", id)

	reqs := svc.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/v1/proj/launch", reqs[0].Path)
	assert.Equal(t, "nightly", reqs[0].Body["name"])
}

func TestClientFlushDrainsQueueInOrder(t *testing.T) {
	svc := &fakeService{launchID: "launch-1"}
	client, _ := newTestClient(t, svc)

	itemID, err := client.StartItem("launch-1", "", "Checkout", "TEST", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, itemID)
	require.NoError(t, client.Log("launch-1", itemID, "step passed", "INFO", time.Now(), ""))
	require.NoError(t, client.FinishItem("launch-1", itemID, "PASSED", time.Now()))
	require.NoError(t, client.FinishLaunch("launch-1", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Flush(ctx))

	reqs := svc.recorded()
	require.Len(t, reqs, 4)
	assert.Equal(t, "/api/v1/proj/item", reqs[0].Path)
	assert.Equal(t, "/api/v1/proj/log", reqs[1].Path)
	assert.Equal(t, "/api/v1/proj/item/"+itemID, reqs[2].Path)
	assert.Equal(t, "/api/v1/proj/launch/launch-1/finish", reqs[3].Path)
}

func TestClientFlushTimesOutWhenQueueStuck(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj"})
	require.NoError(t, err)

	require.NoError(t, client.Log("launch-1", "item-1", "hello", "INFO", time.Now(), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush not confirmed")
}

func TestClientFlushReportsFailedDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj"})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.FinishLaunch("launch-1", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = client.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliveries failed")

	// The failure count resets on flush, so a queue with nothing new to
	// deliver confirms cleanly.
	require.NoError(t, client.Flush(ctx))
}

func TestClientAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "launch-1"})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj", APIKey: "secret-token"})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.StartLaunch(context.Background(), "run", time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestClientEnqueueAfterCloseFails(t *testing.T) {
	svc := &fakeService{launchID: "launch-1"}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Project: "proj"})
	require.NoError(t, err)
	client.Close()

	require.Error(t, client.FinishLaunch("launch-1", time.Now()))
	require.Error(t, client.Flush(context.Background()))
}
