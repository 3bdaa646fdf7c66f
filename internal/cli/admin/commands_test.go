package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docrag/internal/domain"
)

func TestParseOwner(t *testing.T) {
	owner, err := parseOwner("Document", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentOwner("doc-1"), owner)

	owner, err = parseOwner("bot", "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BotOwner("b-1"), owner)

	_, err = parseOwner("user", "u-1")
	assert.ErrorIs(t, err, domain.ErrInvalidOwnerKind)

	_, err = parseOwner("bot", "")
	assert.Error(t, err)
}

func TestReadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))

	text, err := readText(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "from file", text)

	text, err = readText(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	_, err = readText(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestIngestOptionsFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addIngestOptionFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--chunk-size", "500", "--no-embed"}))

	opts := ingestOptionsFromFlags(cmd, domain.DefaultIngestOptions())

	assert.Equal(t, 500, opts.ChunkSize)
	assert.Equal(t, domain.DefaultChunkOverlap, opts.ChunkOverlap)
	assert.False(t, opts.GenerateEmbeddings)
	assert.True(t, opts.ExtractMetadata)
}

func TestPrintResult(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addOutputFlag(cmd)
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, printResult(cmd, map[string]int{"deleted": 2}, func(w io.Writer) {
		_, _ = io.WriteString(w, "Deleted 2\n")
	}))
	assert.Equal(t, "Deleted 2\n", buf.String())

	buf.Reset()
	require.NoError(t, cmd.ParseFlags([]string{"--output", "json"}))
	require.NoError(t, printResult(cmd, map[string]int{"deleted": 2}, func(io.Writer) {}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["deleted"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "héllo...", preview("héllo wörld", 5))
}

func TestBackfillArgs(t *testing.T) {
	cmd := BackfillCmd()
	assert.NoError(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"bot", "b-1"}))
	assert.Error(t, cmd.Args(cmd, []string{"bot"}))
}
