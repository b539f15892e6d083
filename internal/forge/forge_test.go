package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepo(t *testing.T) {
	repo, err := ParseRepo("openjdk/jdk")
	require.NoError(t, err)
	assert.Equal(t, "openjdk", repo.Owner)
	assert.Equal(t, "jdk", repo.Name)
	assert.Equal(t, "openjdk/jdk", repo.FullName())

	_, err = ParseRepo("jdk")
	assert.Error(t, err)
	_, err = ParseRepo("a/b/c")
	assert.Error(t, err)
	_, err = ParseRepo("/jdk")
	assert.Error(t, err)
}

func TestPullRequestHasLabel(t *testing.T) {
	pr := &PullRequest{Labels: []string{"rfr", "ready"}}
	assert.True(t, pr.HasLabel("rfr"))
	assert.False(t, pr.HasLabel("sponsor"))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "approved", VerdictApproved.String())
	assert.Equal(t, "disapproved", VerdictDisapproved.String())
	assert.Equal(t, "comment", VerdictComment.String())
}

func TestRegistry(t *testing.T) {
	called := false
	Register("registry-test", func(opts *Options) (Forge, error) {
		called = true
		return nil, nil
	})
	defer delete(Registry, "registry-test")

	_, err := Create("registry-test", &Options{})
	require.NoError(t, err)
	assert.True(t, called)

	_, err = Create("no-such-forge", &Options{})
	assert.Error(t, err)
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Forge: "github", Message: "boom"}
	assert.Equal(t, "[github] boom", err.Error())
}
