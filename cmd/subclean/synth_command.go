package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subclean/internal/config"
	"subclean/internal/fileutil"
	"subclean/internal/synthetic"
)

func newSynthCommand(ctx *commandContext) *cobra.Command {
	var count int
	var framesDir string
	var masksDir string
	var clean bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic frame and mask set without running the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			frames, masks, err := synthTargets(cfg, framesDir, masksDir)
			if err != nil {
				return err
			}
			if clean {
				for _, dir := range []string{frames, masks} {
					if err := fileutil.ResetDir(dir); err != nil {
						return fmt.Errorf("reset %s: %w", dir, err)
					}
				}
			}
			if count <= 0 {
				count = cfg.Source.SyntheticFrames
			}
			result, err := synthetic.Generate(frames, masks, synthetic.Options{
				Count:     count,
				Width:     cfg.Source.FrameWidth,
				Height:    cfg.Source.FrameHeight,
				BandRatio: cfg.Source.MaskBandRatio,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d frames in %s\n", len(result.Frames), frames)
			fmt.Fprintf(out, "Generated %d masks in %s\n", len(result.Masks), masks)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of frames (defaults to source.synthetic_frames)")
	cmd.Flags().StringVar(&framesDir, "frames-dir", "", "Frames directory (defaults to paths.frames_dir)")
	cmd.Flags().StringVar(&masksDir, "masks-dir", "", "Masks directory (defaults to paths.masks_dir)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Empty the target directories first")
	return cmd
}

func synthTargets(cfg *config.Config, framesDir, masksDir string) (string, string, error) {
	frames, masks := cfg.Paths.FramesDir, cfg.Paths.MasksDir
	if v := strings.TrimSpace(framesDir); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return "", "", fmt.Errorf("resolve frames dir: %w", err)
		}
		frames = expanded
	}
	if v := strings.TrimSpace(masksDir); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return "", "", fmt.Errorf("resolve masks dir: %w", err)
		}
		masks = expanded
	}
	return frames, masks, nil
}
