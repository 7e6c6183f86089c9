package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"insights/internal/config"
	"insights/internal/services"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPURL: "amqp://h/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.AMQPURL != "amqp://h/" {
		t.Fatalf("unexpected backend config: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, AMQPURL: "amqp://localhost:1/"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		defer res.Cleanup()
		if _, err := res.Service.History(ctx, "s"); !errors.Is(err, services.ErrHistoryUnavailable) {
			t.Fatalf("memory backend keeps no history, got %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "insights.db")
		res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		defer res.Cleanup()
		if err := res.Service.Ready(ctx); err != nil {
			t.Fatalf("ready: %v", err)
		}
		if snaps, err := res.Service.History(ctx, "s"); err != nil || len(snaps) != 0 {
			t.Fatalf("expected empty history, got %v %v", snaps, err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := f.CreateBackend(ctx, Config{Type: "nope"}); err == nil {
			t.Fatalf("expected error")
		}
	})
}
