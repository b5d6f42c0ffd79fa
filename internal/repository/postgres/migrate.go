package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"letschat/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every embedded migration in file-name order. The
// statements are idempotent, so running it on each start is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		slog.Debug("applied migration", slog.String("name", name))
	}
	return nil
}

// SeedRooms inserts rooms that do not exist yet and leaves existing rows untouched.
func SeedRooms(ctx context.Context, db *sql.DB, rooms []*domain.Room) error {
	query := `
		INSERT INTO rooms (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	for _, room := range rooms {
		if _, err := db.ExecContext(ctx, query, room.ID, room.Name, room.Description); err != nil {
			return fmt.Errorf("failed to seed room %s: %w", room.ID, err)
		}
	}
	return nil
}
