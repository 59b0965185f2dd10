package main_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/sigmatch"
	main "github.com/fwojciec/sigmatch/cmd/sigmatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against a fresh database in dir.
func run(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()

	m := main.NewMain()
	m.Getenv = func(string) string { return "" }

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	base := []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--db", filepath.Join(dir, "sigmatch.db"),
	}
	err := m.Run(context.Background(), append(base, args...), stdout, stderr)
	return stdout.String(), stderr.String(), err
}

func TestMain_Run(t *testing.T) {
	t.Parallel()

	t.Run("lists no sources on an empty database", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := run(t, t.TempDir(), "sources", "list")

		require.NoError(t, err)
		assert.Contains(t, stdout, "No sources found")
	})

	t.Run("imports a source catalog and lists it", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		catalog := filepath.Join(dir, "sources.yaml")
		require.NoError(t, os.WriteFile(catalog, []byte(`
sources:
  - name: TechSite
    url: https://techsite.example/feed
    tier: 1
`), 0o644))

		stdout, _, err := run(t, dir, "sources", "import", catalog)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Imported 1 sources (0 already present)")

		stdout, _, err = run(t, dir, "sources", "import", catalog)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Imported 0 sources (1 already present)")

		stdout, _, err = run(t, dir, "sources", "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, "TechSite")
		assert.Contains(t, stdout, "active")
	})

	t.Run("runs matching and records the job", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		stdout, _, err := run(t, dir, "match")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Match: 0 targets")

		stdout, _, err = run(t, dir, "jobs")
		require.NoError(t, err)
		assert.Contains(t, stdout, "matching")
		assert.Contains(t, stdout, "completed")
	})

	t.Run("dry-run decay reports without recording a job", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		stdout, _, err := run(t, dir, "decay", "--dry-run")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Would decay 0 of 0 items")

		stdout, _, err = run(t, dir, "jobs")
		require.NoError(t, err)
		assert.Contains(t, stdout, "No jobs recorded yet.")
	})

	t.Run("rejects an unknown log level", func(t *testing.T) {
		t.Parallel()

		_, _, err := run(t, t.TempDir(), "--log-level", "loud", "sources", "list")

		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})

	t.Run("requires an API key to embed", func(t *testing.T) {
		t.Parallel()

		_, stderr, err := run(t, t.TempDir(), "embed")

		require.Error(t, err)
		assert.Contains(t, stderr, "GEMINI_API_KEY")
	})

	t.Run("returns an error with no command", func(t *testing.T) {
		t.Parallel()

		m := main.NewMain()
		err := m.Run(context.Background(), nil, &bytes.Buffer{}, &bytes.Buffer{})

		assert.Error(t, err)
	})
}
