package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/prosthetic"
	"github.com/snow-ghost/readiness/readiness"
)

func newAssessCommand(flags *globalFlags) *cobra.Command {
	req := readiness.Request{}
	var buildProsthetics bool

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run the staged readiness protocol for a model or pair",
		Long: `Run the qualifying gate and, when every gate passes, the weighted
discovery battery. Exits 1 when the model is disqualified or scores below
the readiness threshold.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			a.useModels(req.Main, req.Executor)

			report, err := a.readinessRunner().Assess(ctx, req)
			if err != nil {
				return err
			}

			if buildProsthetics {
				outcomes := prosthetic.FromProbeResults(report.Probes)
				if _, err := a.builder().Update(ctx, a.store, req.Main, outcomes); err != nil {
					a.obs.GetLogger().Warn("prosthetic not saved", "model", req.Main, "error", err)
				}
			}

			if flags.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd, report)
			}

			if report.Status != core.ReadinessCertified {
				return &NotReadyError{Message: fmt.Sprintf("%s is not ready: %s", req.ProfileKey(), report.Status)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Mode, "mode", readiness.ModeSingle, "single or dual")
	cmd.Flags().StringVar(&req.Main, "main", "", "Main model")
	cmd.Flags().StringVar(&req.Executor, "executor", "", "Executor model (dual mode)")
	cmd.Flags().BoolVar(&buildProsthetics, "prosthetics", true, "Update the main model's prosthetic config from the probe results")
	return cmd
}

func printReport(cmd *cobra.Command, r core.ReadinessReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model:   %s", r.MainModel)
	if r.ExecutorModel != "" {
		fmt.Fprintf(out, " + %s", r.ExecutorModel)
	}
	fmt.Fprintf(out, " (%s)\nstatus:  %s\n", r.Mode, r.Status)
	if r.DisqualifiedAt != "" {
		fmt.Fprintf(out, "failed gate: %s\n", r.DisqualifiedAt)
	}
	for _, c := range core.ReadinessOrder {
		if s, ok := r.CategoryScores[c]; ok {
			fmt.Fprintf(out, "  %-16s %3d\n", c, s)
		}
	}
	if r.CategoryScores != nil {
		fmt.Fprintf(out, "overall: %d\n", r.OverallScore)
	}
	for _, p := range r.Probes {
		if p.Passed {
			continue
		}
		fmt.Fprintf(out, "  FAIL %s: %s %s\n", p.Probe, p.Details, p.Error)
	}
}
