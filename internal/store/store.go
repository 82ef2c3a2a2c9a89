package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Store is a booking.Store with lifecycle management.
type Store interface {
	booking.Store
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
}

// migrations returns the .up.sql scripts of one driver in lexical order.
func migrations(driver string) ([]string, error) {
	dir := "migrations/" + driver
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		b, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		scripts = append(scripts, string(b))
	}
	return scripts, nil
}
