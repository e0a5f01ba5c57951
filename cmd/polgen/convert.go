package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Player124413/PolGen-RVC/internal/audio"
	"github.com/Player124413/PolGen-RVC/internal/f0"
)

func newConvertCmd() *cobra.Command {
	var (
		input        string
		output       string
		model        string
		speaker      int
		pitchShift   float64
		method       string
		autotune     bool
		truncateRate float64
		seed         int64
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a WAV clip into a target voice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			buf, err := audio.DecodeWAV(data)
			if err != nil {
				return err
			}

			req, err := defaultRequest(cfg)
			if err != nil {
				return err
			}

			req.Model = model
			req.Speaker = speaker
			req.Audio = buf
			req.PitchShift = pitchShift
			req.Autotune = autotune
			req.TruncateRate = truncateRate
			req.Seed = seed

			if method != "" {
				req.PitchMethod, err = f0.ParseMethod(method)
				if err != nil {
					return err
				}
			}

			svc, _, cleanup, err := buildService(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := svc.Convert(cmd.Context(), req)
			if err != nil {
				return err
			}

			wav, err := audio.EncodeWAV(out)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, wav, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d samples at %d Hz)\n",
				output, len(out.Samples), out.SampleRate)

			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input WAV file (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "out.wav", "Output WAV file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Voice model name (required)")
	cmd.Flags().IntVar(&speaker, "speaker", 0, "Speaker id within the model")
	cmd.Flags().Float64VarP(&pitchShift, "pitch-shift", "p", 0, "Pitch shift in semitones [-24, 24]")
	cmd.Flags().StringVar(&method, "method", "", "Pitch method override (rmvpe+|fcpe|rmvpe|mangio-crepe|crepe)")
	cmd.Flags().BoolVar(&autotune, "autotune", false, "Snap pitch to the nearest semitone")
	cmd.Flags().Float64Var(&truncateRate, "truncate-rate", 0, "Keep only this trailing fraction of the output (0 keeps all)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed (0 picks a random seed)")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}
