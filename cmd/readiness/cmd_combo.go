package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/prosthetic"
)

func newComboCommand(flags *globalFlags) *cobra.Command {
	var mains, executors []string
	var buildProsthetics bool

	cmd := &cobra.Command{
		Use:   "combo",
		Short: "Run the combo matrix across main and executor models",
		Long: `Run the eight-category combo matrix against every (main, executor) pair.

Pairs run main-major. A main model that times out in its first combo is
excluded from the rest of the batch. Results are sorted by overall score.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if len(mains) == 0 {
				mains = a.cfg.Combo.Mains
			}
			if len(executors) == 0 {
				executors = a.cfg.Combo.Executors
			}
			if len(mains) == 0 || len(executors) == 0 {
				return fmt.Errorf("%w: at least one main and one executor model are required", core.ErrInvalidRequest)
			}
			a.useModels(append(append([]string(nil), mains...), executors...)...)

			scores := a.comboTester().RunAll(ctx, mains, executors)

			if buildProsthetics {
				b := a.builder()
				for main, outcomes := range outcomesByMain(scores) {
					if _, err := b.Update(ctx, a.store, main, outcomes); err != nil {
						a.obs.GetLogger().Warn("prosthetic not saved", "model", main, "error", err)
					}
				}
			}

			if flags.jsonOut {
				return printJSON(cmd.OutOrStdout(), scores)
			}
			printCombos(cmd, scores)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&mains, "mains", nil, "Main models (default: combo.mains)")
	cmd.Flags().StringSliceVar(&executors, "executors", nil, "Executor models (default: combo.executors)")
	cmd.Flags().BoolVar(&buildProsthetics, "prosthetics", true, "Update each main model's prosthetic config from its results")
	return cmd
}

// outcomesByMain flattens executed results per main model; excluded rows carry none
func outcomesByMain(scores []core.ComboScore) map[string][]prosthetic.Outcome {
	out := make(map[string][]prosthetic.Outcome)
	for _, s := range scores {
		if s.MainExcluded {
			continue
		}
		out[s.MainModel] = append(out[s.MainModel], prosthetic.FromTestResults(s.Results)...)
	}
	return out
}

func printCombos(cmd *cobra.Command, scores []core.ComboScore) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MAIN\tEXECUTOR\tOVERALL\tSIMPLE\tMEDIUM\tCOMPLEX\tMAIN%\tEXEC%\tTIMEOUTS\tSKIPPED\tNOTE")
	for _, s := range scores {
		note := ""
		if s.MainExcluded {
			note = "main excluded"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%.0f\t%.0f\t%d\t%d\t%d\t%d\t%s\n",
			s.MainModel, s.ExecutorModel, s.OverallScore,
			s.TierScores[core.TierSimple], s.TierScores[core.TierMedium], s.TierScores[core.TierComplex],
			s.MainScore, s.ExecutorScore, s.TimedOutTests, s.SkippedTests, note)
	}
	w.Flush()
}
