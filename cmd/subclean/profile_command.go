package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"subclean/internal/config"
	"subclean/internal/hardware"
	"subclean/internal/pipeline"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var computeMode string
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Detect the compute device a run would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ApplyOverrides(config.Overrides{ComputeMode: computeMode}); err != nil {
				return err
			}
			profile := pipeline.NewProfiler(cfg, ctx.logger(cfg)).Profile(cmd.Context())

			out := cmd.OutOrStdout()
			if asYAML {
				data, err := yaml.Marshal(profile)
				if err != nil {
					return fmt.Errorf("encode profile: %w", err)
				}
				_, err = out.Write(data)
				return err
			}
			fmt.Fprintln(out, renderTable("Device Profile", []string{"Field", "Value"}, profileRows(profile), nil))
			if len(profile.GPUs) > 0 {
				fmt.Fprintln(out, renderTable("GPUs", []string{"#", "Name", "Memory (MiB)"}, gpuRows(profile.GPUs),
					[]columnAlignment{alignRight, alignLeft, alignRight}))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&computeMode, "compute", "", "Compute mode override: auto, gpu, or cpu")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the profile as YAML")
	return cmd
}

func profileRows(p hardware.Profile) [][]string {
	rows := [][]string{
		{"Compute", string(p.Compute)},
		{"Device flag", p.Compute.DeviceFlag()},
		{"Download weights", yesNo(p.FetchWeights)},
		{"Detected by", dash(p.Source)},
	}
	if p.Detail != "" {
		rows = append(rows, []string{"Detail", p.Detail})
	}
	return rows
}

func gpuRows(gpus []hardware.GPU) [][]string {
	rows := make([][]string, 0, len(gpus))
	for i, g := range gpus {
		rows = append(rows, []string{strconv.Itoa(i), g.Name, strconv.Itoa(g.MemoryMiB)})
	}
	return rows
}
