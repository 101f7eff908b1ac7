package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"subclean/internal/config"
	"subclean/internal/pipeline"
	"subclean/internal/runspec"
	"subclean/internal/stage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var overrides config.Overrides
	var runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire frames, run both inference stages, and publish the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ApplyOverrides(overrides); err != nil {
				return err
			}
			id := strings.TrimSpace(runID)
			if id == "" {
				id = uuid.NewString()
			}

			logger := ctx.logger(cfg)
			orch, err := pipeline.NewFromConfig(cfg, id, logger)
			if err != nil {
				return err
			}
			defer orch.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, runErr := orch.Run(runCtx, runspec.FromConfig(cfg, id))
			printRunSummary(cmd.OutOrStdout(), report)
			if runErr != nil {
				code := report.ExitCode
				if code == pipeline.ExitOK {
					code = pipeline.ExitInternal
				}
				return &exitError{code: code, err: runErr}
			}
			if report.ExitCode != pipeline.ExitOK {
				return &exitError{
					code: report.ExitCode,
					err:  fmt.Errorf("run %s %s", report.RunID, report.Classification),
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.ComputeMode, "compute", "", "Compute mode: auto, gpu, or cpu")
	cmd.Flags().StringVar(&overrides.SourceMode, "source", "", "Source mode: remote, synthetic, or pre-staged")
	cmd.Flags().StringVar(&overrides.SourceURL, "source-url", "", "Remote source video locator (s3:// or file://)")
	cmd.Flags().StringVar(&overrides.DestinationURL, "dest-url", "", "Remote destination locator (s3:// or file://)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty)")
	return cmd
}

func printRunSummary(out io.Writer, report pipeline.Report) {
	fmt.Fprintf(out, "Run %s: %s (exit %d) in %s\n",
		report.RunID, report.Classification, report.ExitCode, report.Duration().Round(time.Millisecond))
	if report.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", report.Error)
	}
	if report.Profile.Compute != "" {
		fmt.Fprintf(out, "Compute: %s (download weights: %s)\n", report.Profile.Compute, yesNo(report.Profile.FetchWeights))
	}
	if acq := report.Acquisition; acq != nil {
		fmt.Fprintf(out, "Source: %s, %d frames, %d masks\n", displayLabel(string(acq.Strategy)), acq.Frames, acq.Masks)
	}

	if outcomes := report.Outcomes(); len(outcomes) > 0 {
		fmt.Fprintln(out, renderTable("", []string{"Stage", "Status", "Exit", "Outputs", "Duration", "Detail"},
			stageRows(outcomes),
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}))
	}

	if pub := report.Publish; pub != nil {
		if pub.Assembled() {
			fmt.Fprintf(out, "Container: %s (%d frames)\n", pub.Container, pub.Frames)
		}
		if pub.Uploaded() {
			fmt.Fprintf(out, "Uploaded: %s\n", pub.ContainerURL)
		}
		if pub.FramesURL != "" {
			fmt.Fprintf(out, "Frames: %s (%d files)\n", pub.FramesURL, pub.UploadedFrames)
		}
		for _, w := range pub.Warnings {
			fmt.Fprintf(out, "Warning: %s\n", w)
		}
	}
}

func stageRows(outcomes []stage.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		exit := "-"
		if o.ExitCode >= 0 {
			exit = strconv.Itoa(o.ExitCode)
		}
		detail := o.Reason
		if detail == "" {
			detail = o.Warning
		}
		if detail == "" {
			detail = o.OutputDir
		}
		rows = append(rows, []string{
			displayLabel(string(o.Stage)),
			displayLabel(string(o.Status)),
			exit,
			strconv.Itoa(o.Outputs),
			o.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}
	return rows
}
