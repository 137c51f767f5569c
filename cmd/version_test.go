package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInfoString(t *testing.T) {
	b := buildInfo{
		Version:       "v0.3.0",
		Revision:      "0123456789abcdef0123",
		Modified:      true,
		GoVersion:     "go1.24.0",
		CatalogSchema: "v1.x",
		StoreDrivers:  []string{"memory", "sqlite"},
	}
	got := b.String()
	assert.Contains(t, got, "nextlesson v0.3.0")
	assert.Contains(t, got, "revision: 0123456789ab-dirty")
	assert.Contains(t, got, "go:       go1.24.0")
	assert.Contains(t, got, "stores:   memory, sqlite")
}

func TestVersionCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() { _ = versionCmd.Flags().Set("json", "false") })

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var info buildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "v1.x", info.CatalogSchema)
	assert.ElementsMatch(t, []string{"memory", "sqlite", "postgres", "redis"}, info.StoreDrivers)
	assert.NotEmpty(t, info.Version)
}
