package loki

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type MockLogger struct{}

func (m *MockLogger) Error(msg string, args ...any) {
}

func Test_ConfigValidation(t *testing.T) {
	cfg := Config{}
	_, err := New(context.Background(), cfg, &MockLogger{})
	assert.Error(t, err)

	cfg.Url = "http://loki:3100/loki/api/v1/push"
	pusher, err := New(context.Background(), cfg, &MockLogger{})
	assert.NoError(t, err)
	assert.Equal(t, cfg.Url, pusher.config.Url)
	assert.Equal(t, 500, pusher.config.BatchMaxSize)
	assert.Equal(t, 3*time.Second, pusher.config.BatchMaxWait)
	assert.Equal(t, map[string]string{"service": "autopilot"}, pusher.config.Labels)
	pusher.Stop()
}

func Test_ConfigDefaults_ShouldKeepExplicitServiceLabel(t *testing.T) {
	cfg := Config{
		Url:    "http://loki:3100/loki/api/v1/push",
		Labels: map[string]string{"service": "autopilot-staging"},
	}
	pusher, err := New(context.Background(), cfg, &MockLogger{})
	assert.NoError(t, err)
	assert.Equal(t, "autopilot-staging", pusher.config.Labels["service"])
	pusher.Stop()
}

func Test_Push_WhenBatchFull_ShouldDeliverLabeledStream(t *testing.T) {

	received := make(chan pushRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gz, err := gzip.NewReader(r.Body)
		assert.NoError(t, err)
		body, err := io.ReadAll(gz)
		assert.NoError(t, err)

		var request pushRequest
		assert.NoError(t, json.Unmarshal(body, &request))
		received <- request

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := Config{
		Url:          server.URL,
		BatchMaxSize: 2,
		BatchMaxWait: time.Hour,
		Labels:       map[string]string{"app": "autopilot-test"},
	}
	pusher, err := New(context.Background(), cfg, &MockLogger{})
	assert.NoError(t, err)
	defer pusher.Stop()

	assert.NoError(t, pusher.Push(LogEntry{Level: "error", Message: "first"}))
	assert.NoError(t, pusher.Push(LogEntry{Level: "error", Message: "second"}))

	select {
	case request := <-received:
		assert.Len(t, request.Streams, 1)
		assert.Equal(t, "autopilot-test", request.Streams[0].Stream["app"])
		assert.Equal(t, "autopilot", request.Streams[0].Stream["service"])
		assert.Len(t, request.Streams[0].Values, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no push reached the server")
	}
}
