package main

import (
	"testing"

	"github.com/leafmarket/pointshop/internal/app"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := app.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.StorageDriver != app.StorageDriverMemory {
		t.Fatalf("unexpected storage driver: %s", cfg.StorageDriver)
	}
}

func TestLoadConfig_RejectsInvalidDriver(t *testing.T) {
	t.Setenv("POINTSHOP_STORAGE_DRIVER", "cassandra")

	if _, err := app.LoadConfig(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
