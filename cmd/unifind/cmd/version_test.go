package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/unifind/internal/store"
	"github.com/Aman-CERP/unifind/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing without flags
	err := cmd.Execute()

	// Then: it prints the build and the index format
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "unifind")
	assert.Contains(t, out, version.Version)
	assert.Contains(t, out, "commit")
	assert.Contains(t, out, fmt.Sprintf("index schema v%d", store.SchemaVersion))
	assert.Contains(t, out, "google_drive, dropbox")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	// Given: a version command with --short
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--short"})

	// When: executing
	err := cmd.Execute()

	// Then: only the version number is printed
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(buf.String()))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// Given: a version command with --json
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	// When: executing
	err := cmd.Execute()

	// Then: the output is JSON with the build and index format
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch", "index_schema", "providers"} {
		assert.Contains(t, info, key)
	}
	assert.Equal(t, version.Version, info["version"])
	assert.EqualValues(t, store.SchemaVersion, info["index_schema"])
	assert.Equal(t, []any{"google_drive", "dropbox"}, info["providers"])
}
