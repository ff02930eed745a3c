package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/readiness/testkit"
)

func newDistillCommand(flags *globalFlags) *cobra.Command {
	var teacher, student, capability string

	cmd := &cobra.Command{
		Use:   "distill",
		Short: "Transfer tool-use patterns from a teacher model to a student",
		Long: fmt.Sprintf(`Run the teacher on a capability's cases, extract the patterns of its
successful runs, and synthesize a prosthetic prompt for the student. The
student is measured before and after; the prosthetic is verified only when
the student improves.

Capabilities: %s`, strings.Join(testkit.DistillationCapabilities(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close(context.Background())
			a.useModels(teacher, student)

			result := a.distiller().Distill(ctx, teacher, student, capability)
			if flags.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "teacher %s: %d\n", teacher, result.TeacherScore)
				fmt.Fprintf(out, "student %s: %d -> %d (level %d)\n", student, result.StudentBefore, result.StudentAfter, result.Level)
				fmt.Fprintln(out, result.Message)
				if result.Prosthetic != "" {
					fmt.Fprintf(out, "\n%s\n", result.Prosthetic)
				}
			}
			if !result.Success {
				return &NotReadyError{Message: result.Message}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&teacher, "teacher", "", "Teacher model")
	cmd.Flags().StringVar(&student, "student", "", "Student model")
	cmd.Flags().StringVar(&capability, "capability", "rag", "Capability to distill")
	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}
