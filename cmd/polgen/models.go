package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Player124413/PolGen-RVC/internal/vc"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available voice model bundles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			manager := vc.NewManager(cfg.Paths.ModelsDir, slog.Default())

			names, err := manager.List()
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no voice models in %s\n", cfg.Paths.ModelsDir)
				return nil
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}
