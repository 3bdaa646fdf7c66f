package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "docragd", Short: "root"}
	AddHelpJSONFlag(root)

	ingest := &cobra.Command{Use: "ingest <document-id>", Short: "Ingest a document", RunE: func(*cobra.Command, []string) error { return nil }}
	ingest.Flags().StringP("file", "f", "", "Path to the text file")
	ingest.Flags().Int("chunk-size", 1000, "Chunk size")
	_ = ingest.MarkFlagRequired("file")

	hidden := &cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}}

	root.AddCommand(ingest, hidden)
	return root
}

func TestDescribe(t *testing.T) {
	schema := Describe(testTree())

	assert.Equal(t, "docragd", schema.Name)
	require.Len(t, schema.Subcommands, 1)

	ingest := schema.Subcommands[0]
	assert.Equal(t, "ingest", ingest.Name)
	require.Len(t, ingest.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range ingest.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["file"].Required)
	assert.Equal(t, "f", byName["file"].Shorthand)
	assert.False(t, byName["chunk-size"].Required)
	assert.Equal(t, "int", byName["chunk-size"].Type)
	assert.Equal(t, "1000", byName["chunk-size"].Default)
}

func TestCheckHelpJSON(t *testing.T) {
	var buf bytes.Buffer
	handled := CheckHelpJSON(&buf, testTree(), []string{"ingest", "--help-json"})
	require.True(t, handled)

	var schema CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &schema))
	assert.Equal(t, "ingest", schema.Name)

	buf.Reset()
	assert.False(t, CheckHelpJSON(&buf, testTree(), []string{"ingest", "doc-1"}))
	assert.Empty(t, buf.String())
}
