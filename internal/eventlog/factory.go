package eventlog

import (
	"context"
	"strings"
)

// NewStore selects a backend: postgres when a database URL is configured,
// a local sqlite file when a path is, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL, dbPath string, keep int) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	if strings.TrimSpace(dbPath) != "" {
		return NewSQLiteStore(dbPath)
	}
	return NewInMemoryStore(keep), nil
}
