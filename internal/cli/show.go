package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pattern-alerts/internal/app"
)

var (
	showMetric string
	showAlerts bool
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent metric samples or emitted alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Metric: showMetric,
			Alerts: showAlerts,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showMetric, "metric", "price", "Metric to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Display the alert audit trail instead of samples")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
}
