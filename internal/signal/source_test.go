package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helmsan/kompass/internal/model"
)

func TestIssueSourceFetch(t *testing.T) {
	var gotAuth, gotProject, gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/issues/recent", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotProject = r.URL.Query().Get("project")
		gotSince = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"issues": [
			{"key": "KB-1", "summary": "login page blank", "updated_at": 1719410400},
			{"key": "KB-2", "summary": "  ", "updated_at": 1719410401}
		]}`))
	}))
	defer server.Close()

	src := NewIssueSource(server.URL, "secret", "kb", 1.5, time.Second)
	since := time.Unix(1719400000, 0)
	signals, err := src.Fetch(context.Background(), model.Scope{Org: "acme"}, since)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "kb", gotProject)
	require.Equal(t, "1719400000", gotSince)
	// blank summaries are dropped
	require.Len(t, signals, 1)
	require.Equal(t, "issues", signals[0].Source)
	require.Equal(t, model.SignalTicket, signals[0].Kind)
	require.Equal(t, "login page blank", signals[0].Text)
	require.Equal(t, "KB-1", signals[0].Ref)
	require.Equal(t, int64(1719410400), signals[0].OccurredAt)
}

func TestIssueSourceFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tracker exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	src := NewIssueSource(server.URL, "", "kb", 1.5, time.Second)
	_, err := src.Fetch(context.Background(), model.Scope{Org: "acme"}, time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "tracker exploded")
}

func TestTestFailureSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/failures/recent", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"failures": [
			{"suite": "export", "test_name": "audio_roundtrip", "failed_at": 1719410400},
			{"suite": "", "test_name": "smoke", "failed_at": 1719410401}
		]}`))
	}))
	defer server.Close()

	src := NewTestFailureSource(server.URL, "", 1.0, time.Second)
	signals, err := src.Fetch(context.Background(), model.Scope{Org: "acme"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, signals, 2)
	require.Equal(t, "test_failures", signals[0].Source)
	require.Equal(t, model.SignalTestFailure, signals[0].Kind)
	require.Equal(t, "export: audio_roundtrip", signals[0].Text)
	require.Equal(t, "export/audio_roundtrip", signals[0].Ref)
	require.Equal(t, "smoke", signals[1].Text)
}
