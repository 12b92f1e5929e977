package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luckfunc/floorbot/internal/config"
	"github.com/luckfunc/floorbot/internal/models"
)

// Backend keeps the whole tracked state under one key.
type Backend interface {
	Load(ctx context.Context) (models.TrackedState, error)
	Save(ctx context.Context, state models.TrackedState) error
	Close() error
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Storage) (Backend, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFileStore(cfg.Path), nil
	case config.DriverRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresName)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func encodeState(state models.TrackedState) ([]byte, error) {
	if state == nil {
		state = models.TrackedState{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tracked state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (models.TrackedState, error) {
	var state models.TrackedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracked state: %w", err)
	}
	if state == nil {
		state = models.TrackedState{}
	}
	for subscriber, collections := range state {
		if len(collections) == 0 {
			delete(state, subscriber)
		}
	}
	return state, nil
}
