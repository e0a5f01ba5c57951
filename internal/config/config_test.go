package config

import (
	"testing"

	"github.com/spf13/pflag"
)

type fakeCmd struct {
	fs *pflag.FlagSet
}

func (f *fakeCmd) Flags() *pflag.FlagSet { return f.fs }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Convert.PitchMethod != "rmvpe+" {
		t.Fatalf("default pitch method = %q, want rmvpe+", cfg.Convert.PitchMethod)
	}

	if cfg.Convert.Protect != 0.33 {
		t.Fatalf("default protect = %v, want 0.33", cfg.Convert.Protect)
	}

	if cfg.Paths.ModelsDir != "models" {
		t.Fatalf("default models dir = %q, want models", cfg.Paths.ModelsDir)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	defaults := DefaultConfig()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse([]string{"--convert-index-rate=0.75", "--paths-models-dir=/data/voices"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: &fakeCmd{fs: fs}, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Convert.IndexRate != 0.75 {
		t.Fatalf("index rate = %v, want 0.75", cfg.Convert.IndexRate)
	}

	if cfg.Paths.ModelsDir != "/data/voices" {
		t.Fatalf("models dir = %q, want /data/voices", cfg.Paths.ModelsDir)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POLGEN_ORT_LIB", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Fatalf("ort library path = %q, want env value", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	_, err := Load(LoadOptions{Defaults: DefaultConfig(), ConfigFile: "/nonexistent/polgen.yaml"})
	if err == nil {
		t.Fatalf("Load with missing explicit config file succeeded, want error")
	}
}
