package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/model"
	"github.com/openjdk/jmerge/pkg/idgen"
)

func TestPRStateStore_GetOrCreate(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	state, err := s.PRState().Get("openjdk/jdk", 17)
	require.NoError(t, err)
	assert.Nil(t, state)

	state, err = s.PRState().GetOrCreate("openjdk/jdk", 17)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Open)
	assert.Equal(t, 0, state.Generation)

	// Second call must return the same row.
	again, err := s.PRState().GetOrCreate("openjdk/jdk", 17)
	require.NoError(t, err)
	assert.Equal(t, state.ID, again.ID)
}

func TestPRStateStore_BumpGeneration(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	gen, err := s.PRState().BumpGeneration("openjdk/jdk", 42)
	require.NoError(t, err)
	assert.Equal(t, 1, gen)

	gen, err = s.PRState().BumpGeneration("openjdk/jdk", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, gen)

	state, err := s.PRState().Get("openjdk/jdk", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Generation)
}

func TestPRStateStore_Fingerprint(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	err := s.PRState().SetFingerprint("openjdk/jdk", 7, "abc123", 900, &expires)
	require.NoError(t, err)

	state, err := s.PRState().Get("openjdk/jdk", 7)
	require.NoError(t, err)
	assert.Equal(t, "abc123", state.Fingerprint)
	assert.Equal(t, int64(900), state.CheckID)
	require.NotNil(t, state.ExpiresAt)
	assert.WithinDuration(t, expires, *state.ExpiresAt, time.Second)
}

func TestPRStateStore_Recheck(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	at := time.Now().Add(time.Hour)
	require.NoError(t, s.PRState().ScheduleRecheck("openjdk/jdk", 3, at))

	state, err := s.PRState().Get("openjdk/jdk", 3)
	require.NoError(t, err)
	require.NotNil(t, state.RecheckAt)

	require.NoError(t, s.PRState().ClearRecheck("openjdk/jdk", 3))
	state, err = s.PRState().Get("openjdk/jdk", 3)
	require.NoError(t, err)
	assert.Nil(t, state.RecheckAt)
}

func TestPRStateStore_SweepClosed(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	_, err := s.PRState().GetOrCreate("openjdk/jdk", 1)
	require.NoError(t, err)
	_, err = s.PRState().GetOrCreate("openjdk/jdk", 2)
	require.NoError(t, err)
	require.NoError(t, s.PRState().MarkClosed("openjdk/jdk", 1))

	// Cutoff in the future sweeps everything closed before it.
	n, err := s.PRState().SweepClosed(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	state, err := s.PRState().Get("openjdk/jdk", 1)
	require.NoError(t, err)
	assert.Nil(t, state)
	state, err = s.PRState().Get("openjdk/jdk", 2)
	require.NoError(t, err)
	assert.NotNil(t, state)
}

func TestCommandStore_SeenAndRecord(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	seen, err := s.Command().Seen(555)
	require.NoError(t, err)
	assert.False(t, seen)

	err = s.Command().Record(&model.CommandRecord{
		ID:           idgen.NewID(),
		RepoFullName: "openjdk/jdk",
		PRNumber:     9,
		CommentID:    555,
		Verb:         "reviewers",
		Args:         "2 reviewer",
		User:         "duke",
		Authorized:   true,
		Generation:   1,
	})
	require.NoError(t, err)

	seen, err = s.Command().Seen(555)
	require.NoError(t, err)
	assert.True(t, seen)

	// Duplicate comment ids are rejected by the unique index.
	err = s.Command().Record(&model.CommandRecord{
		ID:           idgen.NewID(),
		RepoFullName: "openjdk/jdk",
		PRNumber:     9,
		CommentID:    555,
		Verb:         "reviewers",
		User:         "duke",
		Generation:   2,
	})
	assert.Error(t, err)
}

func TestCommandStore_ListOrdered(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	for i, verb := range []string{"reviewers", "csr", "touch"} {
		err := s.Command().Record(&model.CommandRecord{
			ID:           idgen.NewID(),
			RepoFullName: "openjdk/jdk",
			PRNumber:     9,
			CommentID:    int64(100 + i),
			Verb:         verb,
			User:         "duke",
			Generation:   i + 1,
		})
		require.NoError(t, err)
	}

	records, err := s.Command().ListForPR("openjdk/jdk", 9)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "reviewers", records[0].Verb)
	assert.Equal(t, "touch", records[2].Verb)

	n, err := s.Command().SweepForPR("openjdk/jdk", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestIssueLinkStore_Replace(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	err := s.IssueLink().Replace("openjdk/jdk", 11, []string{"JDK-8000001", "JDK-8000002"}, "JDK-8000001")
	require.NoError(t, err)

	links, err := s.IssueLink().ListForPR("openjdk/jdk", 11)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "JDK-8000001", links[0].IssueKey)
	assert.True(t, links[0].Primary)
	assert.False(t, links[1].Primary)

	// Replace drops links no longer claimed.
	err = s.IssueLink().Replace("openjdk/jdk", 11, []string{"JDK-8000002"}, "JDK-8000002")
	require.NoError(t, err)
	links, err = s.IssueLink().ListForPR("openjdk/jdk", 11)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "JDK-8000002", links[0].IssueKey)
	assert.True(t, links[0].Primary)
}

func TestIssueLinkStore_PRsForIssue(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	require.NoError(t, s.IssueLink().Replace("openjdk/jdk", 11, []string{"JDK-8000001"}, "JDK-8000001"))
	require.NoError(t, s.IssueLink().Replace("openjdk/jdk", 12, []string{"JDK-8000001"}, "JDK-8000001"))

	links, err := s.IssueLink().PRsForIssue("JDK-8000001")
	require.NoError(t, err)
	assert.Len(t, links, 2)

	n, err := s.IssueLink().DeleteForPR("openjdk/jdk", 11)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRepositoryStore_Upsert(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	repo, err := s.Repository().Upsert("openjdk/jdk", "github", "jmerge-bot")
	require.NoError(t, err)
	assert.Equal(t, "openjdk/jdk", repo.FullName)

	// Upsert with a new bot name updates in place.
	repo2, err := s.Repository().Upsert("openjdk/jdk", "github", "other-bot")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, repo2.ID)
	assert.Equal(t, "other-bot", repo2.BotName)

	repos, err := s.Repository().List()
	require.NoError(t, err)
	assert.Len(t, repos, 1)

	require.NoError(t, s.Repository().TouchPoll("openjdk/jdk", time.Now()))
	got, err := s.Repository().Get("openjdk/jdk")
	require.NoError(t, err)
	assert.NotNil(t, got.LastPollAt)
}

func TestStore_Transaction(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	err := s.Transaction(func(tx Store) error {
		_, err := tx.PRState().GetOrCreate("openjdk/jdk", 1)
		return err
	})
	require.NoError(t, err)

	state, err := s.PRState().Get("openjdk/jdk", 1)
	require.NoError(t, err)
	assert.NotNil(t, state)
}
