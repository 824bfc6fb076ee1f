package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"reward-farming/internal/app"
)

var (
	simulateDuration uint64
	simulateStakes   []string
	simulateFundA    string
	simulateFundB    string
	simulateSteps    int
	simulateStep     time.Duration
	simulateAlerts   bool
	simulateCSVPath  string
	simulatePNGPath  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a reward period and check reward conservation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(simulateStakes) == 0 {
			return errors.New("--stakes needs at least one amount")
		}
		decimals := getApp().Config.App.AmountDecimals

		opts := app.SimulateOptions{
			Duration: simulateDuration,
			Steps:    simulateSteps,
			Step:     simulateStep,
			Alerts:   simulateAlerts,
			CSVPath:  simulateCSVPath,
			PNGPath:  simulatePNGPath,
		}
		for _, s := range simulateStakes {
			amount, err := parseAmount("stakes", s, decimals)
			if err != nil {
				return err
			}
			opts.Stakes = append(opts.Stakes, amount)
		}
		var err error
		if simulateFundA != "" {
			if opts.FundA, err = parseAmount("fund-a", simulateFundA, decimals); err != nil {
				return err
			}
		}
		if simulateFundB != "" {
			if opts.FundB, err = parseAmount("fund-b", simulateFundB, decimals); err != nil {
				return err
			}
		}

		_, err = getApp().Simulate(cmd.Context(), opts)
		return err
	},
}

func init() {
	simulateCmd.Flags().Uint64Var(&simulateDuration, "duration", 86400, "reward period length in seconds")
	simulateCmd.Flags().StringSliceVar(&simulateStakes, "stakes", nil, "comma separated stake amount per staker")
	simulateCmd.Flags().StringVar(&simulateFundA, "fund-a", "", "reward amount funded into slot A")
	simulateCmd.Flags().StringVar(&simulateFundB, "fund-b", "", "reward amount funded into slot B (optional)")
	simulateCmd.Flags().IntVar(&simulateSteps, "steps", 10, "number of snapshot steps")
	simulateCmd.Flags().DurationVar(&simulateStep, "step", 0, "time advanced per step (defaults to duration / steps)")
	simulateCmd.Flags().BoolVar(&simulateAlerts, "alerts", false, "send reward period alerts through the configured channels")
	simulateCmd.Flags().StringVar(&simulateCSVPath, "csv", "", "CSV output path")
	simulateCmd.Flags().StringVar(&simulatePNGPath, "png", "", "PNG chart output path")
}
