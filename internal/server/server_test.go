package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/bot"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/engine"
	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/pkg/idgen"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	eng := engine.New(config.EngineConfig{MaxWorkers: 1}, []*bot.Bot{}, st)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	srv := New(cfg, eng, st)
	srv.SetupRoutes()
	return srv, st
}

func doGet(srv *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListBotsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/api/v1/bots")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestQueueStats(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/api/v1/queue")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pending_items")
}

func TestGetPRState(t *testing.T) {
	srv, st := newTestServer(t)

	state := &model.PullRequestState{
		ID:           idgen.NewID(),
		RepoFullName: "openjdk/jdk",
		PRNumber:     42,
		LastHeadHash: "abc123",
		Generation:   2,
		Open:         true,
	}
	require.NoError(t, st.PRState().Save(state))
	require.NoError(t, st.IssueLink().Replace("openjdk/jdk", 42, []string{"JDK-8123456"}, "JDK-8123456"))

	w := doGet(srv, "/api/v1/repositories/openjdk/jdk/prs/42")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_head_hash":"abc123"`)
	assert.Contains(t, w.Body.String(), "JDK-8123456")
}

func TestGetPRStateNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/api/v1/repositories/openjdk/jdk/prs/999")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPRStateBadNumber(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/api/v1/repositories/openjdk/jdk/prs/nope")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPRStates(t *testing.T) {
	srv, st := newTestServer(t)

	for _, n := range []int{1, 2} {
		require.NoError(t, st.PRState().Save(&model.PullRequestState{
			ID:           idgen.NewID(),
			RepoFullName: "openjdk/jdk",
			PRNumber:     n,
			Open:         true,
		}))
	}
	require.NoError(t, st.PRState().MarkClosed("openjdk/jdk", 2))

	w := doGet(srv, "/api/v1/repositories/openjdk/jdk/prs")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.PullRequestState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 1, resp.Data[0].PRNumber)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doGet(srv, "/healthz")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServerStartStop(t *testing.T) {
	srv, _ := newTestServer(t)

	require.NoError(t, srv.Start())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, srv.Stop())
}
