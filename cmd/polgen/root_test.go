package main

import (
	"testing"

	"github.com/Player124413/PolGen-RVC/internal/config"
	"github.com/Player124413/PolGen-RVC/internal/f0"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"convert", "models", "serve"} {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmdRegistersConfigFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, flag := range []string{"config", "log-level", "paths-models-dir", "convert-pitch-method", "server-listen-addr"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("flag --%s not registered", flag)
		}
	}
}

func TestDefaultRequestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Convert.PitchMethod = "fcpe"
	cfg.Convert.IndexRate = 0.5
	cfg.Convert.Protect = 0.2

	req, err := defaultRequest(cfg)
	if err != nil {
		t.Fatalf("defaultRequest: %v", err)
	}

	if req.PitchMethod != f0.MethodFCPE || req.IndexRate != 0.5 || req.Protect != 0.2 {
		t.Fatalf("config defaults not applied: %+v", req)
	}
}

func TestDefaultRequestRejectsUnknownMethod(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Convert.PitchMethod = "harvest"

	if _, err := defaultRequest(cfg); err == nil {
		t.Fatalf("unknown configured method accepted")
	}
}
