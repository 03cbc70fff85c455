package main

import (
	"testing"

	"lojapdv/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	strongSecret := "0123456789abcdef0123456789abcdef"
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"short secret", config.Config{AuthSecret: "short", ManagerPIN: "739154"}, true},
		{"short pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "7391"}, true},
		{"common pin", config.Config{AuthSecret: strongSecret, ManagerPIN: "123456"}, true},
		{"repeated digits", config.Config{AuthSecret: strongSecret, ManagerPIN: "777777"}, true},
		{"descending run", config.Config{AuthSecret: strongSecret, ManagerPIN: "987654"}, true},
		{"strong", config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected config to be rejected")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected config to pass, got %v", err)
			}
		})
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
}
