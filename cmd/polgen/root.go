package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Player124413/PolGen-RVC/internal/config"
	"github.com/Player124413/PolGen-RVC/internal/content"
	"github.com/Player124413/PolGen-RVC/internal/f0"
	"github.com/Player124413/PolGen-RVC/internal/onnx"
	"github.com/Player124413/PolGen-RVC/internal/runtime/ops"
	"github.com/Player124413/PolGen-RVC/internal/server"
	"github.com/Player124413/PolGen-RVC/internal/vc"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "polgen",
		Short: "PolGen voice conversion command line",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			ops.SetConvWorkers(loaded.Runtime.ConvWorkers)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelsDir == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}

	return activeCfg, nil
}

// buildService wires the pipeline from the active configuration. The
// returned cleanup releases the ORT sessions.
func buildService(cfg config.Config) (*vc.Service, *vc.Manager, func(), error) {
	ortCfg := onnx.RunnerConfig{LibraryPath: cfg.Runtime.ORTLibraryPath}

	encoder, err := content.NewEncoder(cfg.Paths.ContentEncoder, ortCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := f0.NewEngine(f0.Paths{
		RMVPE: cfg.Paths.RMVPE,
		FCPE:  cfg.Paths.FCPE,
		Crepe: cfg.Paths.Crepe,
	}, ortCfg)

	manager := vc.NewManager(cfg.Paths.ModelsDir, slog.Default())
	svc := vc.NewService(manager, encoder, engine, slog.Default())

	cleanup := func() {
		engine.Close()
		encoder.Close()
	}

	return svc, manager, cleanup, nil
}

// defaultRequest seeds a request from the configured conversion defaults.
func defaultRequest(cfg config.Config) (vc.ConversionRequest, error) {
	req := vc.DefaultRequest()

	method, err := f0.ParseMethod(cfg.Convert.PitchMethod)
	if err != nil {
		return vc.ConversionRequest{}, err
	}

	req.PitchMethod = method
	req.IndexRate = cfg.Convert.IndexRate
	req.FilterRadius = cfg.Convert.FilterRadius
	req.RMSMixRate = cfg.Convert.RMSMixRate
	req.Protect = cfg.Convert.Protect
	req.F0Min = cfg.Convert.F0Min
	req.F0Max = cfg.Convert.F0Max
	req.CrepeHop = cfg.Convert.CrepeHop

	return req, nil
}
