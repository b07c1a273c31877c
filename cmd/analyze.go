/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/catalog"
	"fleet/scheduler"
	"fleet/target"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze TARGET",
	Short: "Report the projected rates of every action on a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(viper.GetString("catalog"))
		if err != nil {
			return err
		}

		var t *target.Target
		for i := range c.Targets {
			if c.Targets[i].Name == args[0] {
				t = &c.Targets[i]
			}
		}
		if t == nil {
			return errors.Errorf("no target named %s in the catalog", args[0])
		}

		snap := target.Snap(c.Profile, *t)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "target\t%s\n", t.Name)
		fmt.Fprintf(tw, "eligible\t%t\n", t.Eligible(c.Profile))
		fmt.Fprintf(tw, "difficulty\t%.3f (floor %.3f)\n", t.Difficulty, t.MinDifficulty)
		fmt.Fprintf(tw, "yield\t%.0f of %.0f\n", t.AvailableYield, t.MaxYield)
		fmt.Fprintf(tw, "chance\t%.4f\n", snap.Chance)
		fmt.Fprintf(tw, "fraction/unit\t%.6f\n", snap.YieldFraction)
		fmt.Fprintf(tw, "extract\t%v\t%.2f/s per unit\n", ms(snap.ExtractMs), snap.ExtractRate)
		fmt.Fprintf(tw, "replenish\t%v\t%.2f/s per unit\n", ms(snap.ReplenishMs), snap.ReplenishRate)
		fmt.Fprintf(tw, "stabilize\t%v\t%.3f difficulty per unit\n", ms(snap.StabilizeMs), snap.StabilizeDelta)

		if t.Eligible(c.Profile) {
			nodes, err := c.Nodes()
			if err != nil {
				return err
			}
			s, err := scheduler.New(viper.GetString("strategy"), scheduler.Config{Footprints: c.Footprints, Cores: viper.GetInt("cores")})
			if err != nil {
				return err
			}
			plan, err := scheduler.Run(s, c.Profile, []target.Target{*t}, nodes)
			if err != nil {
				return err
			}
			if len(plan.Candidates) == 0 {
				fmt.Fprintf(tw, "best\tnone\n")
			}
			for _, cand := range plan.Candidates {
				fmt.Fprintf(tw, "best\t%s\t%.2f/s per unit, %d to %d units\n", cand.Action, cand.Rate, cand.MinUnits, cand.MaxUnits)
			}
		}

		return errors.Wrap(tw.Flush(), "writing report")
	},
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond)).Round(time.Millisecond)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("catalog", "c", "fleet.yaml", "Catalog describing profile, targets and workers")
	analyzeCmd.Flags().StringP("strategy", "s", "greedy", "Scheduling strategy (greedy, extract-only)")
	analyzeCmd.Flags().Int("cores", 1, "Core count growth projections assume")
}
