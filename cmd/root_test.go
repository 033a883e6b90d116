package cmd

import (
	"testing"

	"github.com/audiolibrelab/keycapture/internal/config"
)

func TestParseChannel(t *testing.T) {
	cfg = config.Default()
	defer func() { cfg = nil }()

	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"4", 4, false},
		{"0", 0, true},
		{"5", 0, true},
		{"two", 0, true},
	}
	for _, tt := range tests {
		got, err := parseChannel(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChannel(%q): expected error %v, got %v", tt.arg, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseChannel(%q): expected %d, got %d", tt.arg, tt.want, got)
		}
	}
}

func TestGetInheritanceIndicator(t *testing.T) {
	tests := map[string]string{
		config.SourceInherited: "[inherited]",
		config.SourceProfile:   "[profile-specific]",
		config.SourceGlobal:    "[global]",
		"":                     "[unknown]",
	}
	for status, want := range tests {
		if got := getInheritanceIndicator(status); got != want {
			t.Errorf("Expected %s for %q, got %s", want, status, got)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"sim", "serve", "play", "channels", "dump", "config", "info"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}
