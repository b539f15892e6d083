package scheduler

import (
	"context"
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

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, store.Store) {
	t.Helper()

	st, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)

	eng := engine.New(config.EngineConfig{MaxWorkers: 1}, []*bot.Bot{}, st)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)

	return New(cfg, eng, st), st
}

func TestSchedulerStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{PollSpec: "@every 1h"})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	s.Stop()
	s.Stop() // idempotent
}

func TestSchedulerRejectsBadPollSpec(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{PollSpec: "not a cron spec"})
	assert.Error(t, s.Start(context.Background()))
}

func TestSchedulerDefaults(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{})
	assert.Equal(t, defaultPollSpec, s.pollSpec)
	assert.Equal(t, defaultRetentionDays, s.retentionDays)
}

func seedClosedState(t *testing.T, st store.Store, pr int, updatedAt time.Time) {
	t.Helper()
	state := &model.PullRequestState{
		ID:           idgen.NewID(),
		RepoFullName: "openjdk/jdk",
		PRNumber:     pr,
		Open:         false,
	}
	require.NoError(t, st.PRState().Save(state))
	// backdate past the retention window
	require.NoError(t, st.DB().Model(state).Update("updated_at", updatedAt).Error)
}

func TestRetentionSweepsExpiredState(t *testing.T) {
	s, st := newTestScheduler(t, config.SchedulerConfig{RetentionDays: 30})

	old := time.Now().AddDate(0, 0, -60)
	seedClosedState(t, st, 1, old)
	require.NoError(t, st.Command().Record(&model.CommandRecord{
		ID: idgen.NewID(), RepoFullName: "openjdk/jdk", PRNumber: 1,
		CommentID: 101, Verb: "integrate", User: "duke",
	}))
	require.NoError(t, st.IssueLink().Replace("openjdk/jdk", 1, []string{"JDK-8123456"}, "JDK-8123456"))

	// recently closed PR stays
	seedClosedState(t, st, 2, time.Now().AddDate(0, 0, -1))

	s.retention()

	state, err := st.PRState().Get("openjdk/jdk", 1)
	require.NoError(t, err)
	assert.Nil(t, state, "expired state should be deleted")

	seen, err := st.Command().Seen(101)
	require.NoError(t, err)
	assert.False(t, seen, "command ledger rows should be swept")

	links, err := st.IssueLink().ListForPR("openjdk/jdk", 1)
	require.NoError(t, err)
	assert.Empty(t, links)

	kept, err := st.PRState().Get("openjdk/jdk", 2)
	require.NoError(t, err)
	assert.NotNil(t, kept, "recently closed state survives the sweep")
}

func TestRetentionKeepsOpenState(t *testing.T) {
	s, st := newTestScheduler(t, config.SchedulerConfig{RetentionDays: 30})

	state, err := st.PRState().GetOrCreate("openjdk/jdk", 3)
	require.NoError(t, err)
	require.NoError(t, st.DB().Model(state).Update("updated_at", time.Now().AddDate(0, 0, -90)).Error)

	s.retention()

	kept, err := st.PRState().Get("openjdk/jdk", 3)
	require.NoError(t, err)
	assert.NotNil(t, kept, "open PRs are never swept, no matter how old")
}
