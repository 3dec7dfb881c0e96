package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vpn-shop-bot/internal/storage"
)

var dsnName = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewTestStorage creates an in-memory SQLite database with the full schema.
// The connection is closed when the test finishes.
func NewTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnName.Replace(t.Name()))
	store, err := storage.NewSQLiteStorage(dsn)
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
