package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/readiness/intent"
	"github.com/snow-ghost/readiness/pkg/chat"
	"github.com/snow-ghost/readiness/testkit"
)

func newRouteCommand(flags *globalFlags) *cobra.Command {
	var main, executor, capability string
	var tools []string
	var single bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Route one prompt through the intent router with stored prosthetics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			a.useModels(main, executor)

			router := intent.NewRouter(a.gateway, intent.Options{
				Prosthetics: a.store,
				Logger:      a.obs.GetLogger(),
			})
			res, err := router.Route(cmd.Context(), intent.Binding{
				Main:     main,
				Executor: executor,
				Dual:     !single,
				Timeout:  timeout,
			}, intent.RouteRequest{
				Messages:   []chat.Message{chat.User(strings.Join(args, " "))},
				Tools:      testkit.Tools(tools...),
				Capability: capability,
			})
			if err != nil {
				return err
			}

			if flags.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode:     %s\naction:   %s\n", res.Mode, res.DecidedAction)
			if res.ChosenTool != "" {
				fmt.Fprintf(out, "tool:     %s\n", res.ChosenTool)
			}
			for _, c := range res.ToolCalls {
				if c.Function != nil {
					fmt.Fprintf(out, "call:     %s %s\n", c.Name(), c.Function.Arguments)
				}
			}
			for _, h := range res.Interventions {
				fmt.Fprintf(out, "blocked:  %s (%s)\n", h.Call.Name(), h.Rule.Message)
			}
			if res.MainResponse != "" && !res.DecidedAction.RequiresTool() {
				fmt.Fprintf(out, "response: %s\n", res.MainResponse)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&main, "main", "", "Main model")
	cmd.Flags().StringVar(&executor, "executor", "", "Executor model (default: the main model)")
	cmd.Flags().StringVar(&capability, "capability", "", "Capability the request needs, checked against disqualifications")
	cmd.Flags().StringSliceVar(&tools, "tools", []string{testkit.ToolWeather, testkit.ToolSearch, testkit.ToolReadFile}, "Tools offered to the models")
	cmd.Flags().BoolVar(&single, "single", false, "Route to the main model alone")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Turn timeout")
	_ = cmd.MarkFlagRequired("main")
	return cmd
}
