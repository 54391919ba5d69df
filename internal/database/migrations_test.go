package database

import (
	"context"
	"reflect"
	"testing"
)

func TestPendingMigrations(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		applied map[string]bool
		want    []string
	}{
		{
			name:  "all pending, sorted",
			files: []string{"migrations/002_indexes.sql", "migrations/001_init.sql"},
			want:  []string{"migrations/001_init.sql", "migrations/002_indexes.sql"},
		},
		{
			name:    "applied versions skipped",
			files:   []string{"migrations/001_init.sql", "migrations/002_indexes.sql"},
			applied: map[string]bool{"001_init.sql": true},
			want:    []string{"migrations/002_indexes.sql"},
		},
		{
			name:    "nothing pending",
			files:   []string{"migrations/001_init.sql"},
			applied: map[string]bool{"001_init.sql": true},
			want:    nil,
		},
		{
			name: "no files",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pendingMigrations(tt.files, tt.applied)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pendingMigrations = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	if err == nil {
		t.Fatal("Connect with no URL should fail")
	}
}

func TestDefaultConfig_MatchesShippedPoolSize(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConnections != 25 {
		t.Errorf("MaxConnections = %d, want 25", cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > cfg.MaxConnections {
		t.Error("idle connection cap must not exceed the open cap")
	}
}
