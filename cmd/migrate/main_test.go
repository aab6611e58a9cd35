package main

import (
	"io"
	"io/fs"
	"testing"

	appconfig "github.com/wolfman30/woundcare-opportunities/internal/config"
	appmigrations "github.com/wolfman30/woundcare-opportunities/migrations"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		cmd     string
		n       int
		wantErr bool
	}{
		{nil, "up", 0, false},
		{[]string{"up"}, "up", 0, false},
		{[]string{"version"}, "version", 0, false},
		{[]string{"down"}, "down", 1, false},
		{[]string{"down", "2"}, "down", 2, false},
		{[]string{"down", "0"}, "", 0, true},
		{[]string{"force", "3"}, "force", 3, false},
		{[]string{"force"}, "", 0, true},
		{[]string{"force", "x"}, "", 0, true},
		{[]string{"sideways"}, "", 0, true},
	}
	for _, tt := range tests {
		cmd, n, err := parseArgs(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseArgs(%v): expected error", tt.args)
			}
			continue
		}
		if err != nil || cmd != tt.cmd || n != tt.n {
			t.Fatalf("parseArgs(%v) = %q, %d, %v; want %q, %d", tt.args, cmd, n, err, tt.cmd, tt.n)
		}
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	logger := logging.NewWithWriter("error", "text", io.Discard)
	if err := run(&appconfig.Config{}, nil, logger); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	downs, err := fs.Glob(appmigrations.FS, "*.down.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("expected paired migrations, got %d up and %d down", len(ups), len(downs))
	}
}
