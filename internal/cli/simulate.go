package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateMetric    string
	simulateReference float64
	simulateCurrent   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a metric move and exercise the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateReference == 0 && simulateCurrent == 0 {
			return errors.New("--reference and --current must describe a move")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateMetric, simulateReference, simulateCurrent)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMetric, "metric", "price", "Metric to simulate")
	simulateCmd.Flags().Float64Var(&simulateReference, "reference", 0, "Reference value planted in the past")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current value observed now")
}
