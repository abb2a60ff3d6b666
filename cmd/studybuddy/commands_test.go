package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-buddy/internal/infrastructure/persistence/postgres"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"candidates"},
		{"score"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestArgsValidation(t *testing.T) {
	assert.Error(t, scoreCmd.Args(scoreCmd, []string{"alice"}))
	assert.NoError(t, scoreCmd.Args(scoreCmd, []string{"alice", "bob"}))
	assert.Error(t, candidatesCmd.Args(candidatesCmd, nil))

	limit, err := candidatesCmd.Flags().GetInt("limit")
	require.NoError(t, err)
	assert.Zero(t, limit)
}

func TestPrintMigrations(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	printMigrations(&buf, []postgres.Migration{
		{Version: 1, Name: "create_students", IsApplied: true, AppliedAt: &at},
		{Version: 2, Name: "create_matching_preferences"},
	})

	out := buf.String()
	assert.Contains(t, out, "VERSION")
	assert.Regexp(t, `001\s+create_students\s+applied`, out)
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
	assert.Contains(t, out, "pending")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"total_score": 81}))
	assert.Equal(t, "{\n  \"total_score\": 81\n}\n", buf.String())
}
