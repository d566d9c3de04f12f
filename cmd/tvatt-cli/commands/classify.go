package commands

import (
	"fmt"
	"time"
	"tvatt-backend/internal/laundry"

	"github.com/spf13/cobra"
)

var classifyAt *string

func init() {
	classifyAt = classifyCmd.Flags().String("at", "", "Wall clock time to classify at as HH:MM, defaults to now.")
	rootCmd.AddCommand(classifyCmd)
}

var classifyCmd = &cobra.Command{
	Use:   "classify <name> <status> [--at HH:MM]",
	Short: "Prints the state a machine name and status text classify to, and the rule that decided.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		now, err := classifyTime(*classifyAt, time.Now())
		if err != nil {
			return err
		}

		classifier := laundry.DefaultClassifier()
		state, rule := classifier.Explain(args[0], args[1], now)
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", state, rule)
		if ready, ok := classifier.ReadyAt(args[1], now); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "ready at %s\n", ready.Format(time.RFC3339))
		}
		return nil
	},
}

func classifyTime(at string, now time.Time) (time.Time, error) {
	if at == "" {
		return now, nil
	}
	clock, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, expected HH:MM", at)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location()), nil
}
