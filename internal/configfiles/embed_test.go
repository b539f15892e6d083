package configfiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGetConfigExample(t *testing.T) {
	data, err := GetConfigExample()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "server")
	assert.Contains(t, doc, "forges")
	assert.Contains(t, doc, "bots")
	assert.Contains(t, doc, "scheduler")
}
