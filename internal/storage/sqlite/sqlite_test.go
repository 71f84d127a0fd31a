package sqlitestorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

func newBackend(t *testing.T, path string) *Backend {
	t.Helper()
	b, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	return b
}

func TestNew_SetsPragmas(t *testing.T) {
	b := newBackend(t, "")
	t.Cleanup(func() { _ = b.Close() })

	var timeout int
	require.NoError(t, b.DB().Raw("PRAGMA busy_timeout").Scan(&timeout).Error)
	assert.Equal(t, 5000, timeout)
	assert.Equal(t, "sqlite", b.DB().Dialector.Name())
}

func TestInMemoryDatabasesAreIsolated(t *testing.T) {
	a := newBackend(t, "")
	t.Cleanup(func() { _ = a.Close() })
	b := newBackend(t, "")
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.RecordSeen([]model.KnownDevice{{Serial: "only-in-a"}}, time.Now()))

	known, err := b.Known()
	require.NoError(t, err)
	assert.Empty(t, known)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.db")
	at := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)

	b := newBackend(t, path)
	require.NoError(t, b.RecordSeen([]model.KnownDevice{{Serial: "LHR-A", Class: "GenericTracker"}}, at))
	require.NoError(t, b.Close())

	reopened := newBackend(t, path)
	t.Cleanup(func() { _ = reopened.Close() })

	known, err := reopened.Known()
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, "LHR-A", known[0].Serial)
	assert.True(t, at.Equal(known[0].FirstSeen))
}
