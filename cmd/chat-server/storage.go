package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"letschat/internal/config"
	"letschat/internal/domain"
	"letschat/internal/handler"
	"letschat/internal/repository/postgres"
	"letschat/internal/store/memory"
	"letschat/internal/store/pebblestore"
)

// storage is the selected backend: a message store, its room catalogue,
// a readiness probe and a release function.
type storage struct {
	messages domain.MessageStore
	rooms    domain.RoomRepository
	check    handler.Checker
	close    func() error
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	now := time.Now()
	for _, room := range cfg.Rooms {
		if room.CreatedAt.IsZero() {
			room.CreatedAt = now
		}
	}

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	case config.DriverPebble:
		return openPebble(ctx, cfg)
	default:
		return &storage{
			messages: memory.NewMessageStore(cfg.MaxMessageLength),
			rooms:    memory.NewRoomRepository(cfg.Rooms...),
			check:    handler.PingCheck(func(context.Context) error { return nil }),
			close:    func() error { return nil },
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*storage, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.Migrate(connCtx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := postgres.SeedRooms(connCtx, db, cfg.Rooms); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("connected to postgresql")

	go config.RecordPoolStats(ctx, db, 15*time.Second)

	return &storage{
		messages: postgres.NewMessageRepository(db, cfg.MaxMessageLength),
		rooms:    postgres.NewRoomRepository(db),
		check:    handler.DatabaseCheck(db),
		close:    db.Close,
	}, nil
}

func openPebble(ctx context.Context, cfg *config.Config) (*storage, error) {
	store, err := pebblestore.Open(cfg.PebblePath, cfg.MaxMessageLength)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}

	for _, room := range cfg.Rooms {
		_, err := store.GetByID(ctx, room.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			store.Close()
			return nil, err
		}
		if err := store.PutRoom(room); err != nil {
			store.Close()
			return nil, err
		}
	}
	slog.Info("opened pebble store", slog.String("path", cfg.PebblePath))

	return &storage{
		messages: store,
		rooms:    store,
		check:    handler.PingCheck(store.Ping),
		close:    store.Close,
	}, nil
}
