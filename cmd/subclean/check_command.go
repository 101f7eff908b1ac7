package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subclean/internal/config"
	"subclean/internal/pipeline"
	"subclean/internal/preflight"
	"subclean/internal/stage"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify binaries, directories, credentials, and compute before a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cfg)
			p := newCheckPrinter(cmd.OutOrStdout())

			p.section("Dependencies")
			statuses := preflight.CheckSystemDeps(cfg)
			for _, status := range statuses {
				p.dependency(status)
			}

			p.section("Stage tools")
			tools, err := pipeline.NewStageTools(cfg)
			if err != nil {
				p.line("Stage tools", statusError, err.Error())
			} else {
				for _, name := range []stage.Name{stage.Stage1, stage.Stage2} {
					p.tool(name, tools[name].Check())
				}
			}

			p.section("Environment")
			for _, r := range preflight.RunAll(cmd.Context(), cfg, pipeline.NewStore(cfg, logger)) {
				p.result(r)
			}
			p.result(preflight.CheckCompute(cmd.Context(), pipeline.NewProfiler(cfg, logger)))

			fmt.Fprintln(p.out)
			if err := statuses.Err(); err != nil {
				return err
			}
			if p.failures > 0 {
				return fmt.Errorf("%d check(s) failed", p.failures)
			}
			fmt.Fprintln(p.out, sourceSummary(cfg))
			fmt.Fprintln(p.out, "All checks passed")
			return nil
		},
	}
}

func sourceSummary(cfg *config.Config) string {
	switch {
	case cfg.Source.Mode == config.SourcePreStaged:
		return fmt.Sprintf("Source: pre-staged frames in %s", cfg.Paths.FramesDir)
	case cfg.Source.URL != "":
		return fmt.Sprintf("Source: %s", cfg.Source.URL)
	case cfg.Source.Synthetic:
		return fmt.Sprintf("Source: %d synthetic frames", cfg.Source.SyntheticFrames)
	default:
		return fmt.Sprintf("Source: pre-staged frames in %s", cfg.Paths.FramesDir)
	}
}
