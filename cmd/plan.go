/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/catalog"
	"fleet/node"
	"fleet/order"
	"fleet/scheduler"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the work orders one scheduling pass would emit",
	Long: `fleet plan command.

The plan command runs a single decision pass over the catalog without
dispatching anything and prints the ranked candidates and the work orders.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(viper.GetString("catalog"))
		if err != nil {
			return err
		}

		nodes, err := c.Nodes()
		if err != nil {
			return err
		}
		if viper.GetBool("refresh") {
			for _, n := range nodes {
				if n.Api == "" {
					continue
				}
				if _, err := node.GetStats(n); err != nil {
					log.Warnf("Using catalog capacity for %s: %v", n.Name, err)
				}
			}
		}

		s, err := scheduler.New(viper.GetString("strategy"), scheduler.Config{
			Footprints: c.Footprints,
			Cores:      viper.GetInt("cores"),
		})
		if err != nil {
			return err
		}

		plan, err := scheduler.Run(s, c.Profile, c.Targets, nodes)
		if err != nil {
			return err
		}
		orders := order.FromAllocations(uuid.New(), plan.Allocations)

		out := cmd.OutOrStdout()
		if viper.GetBool("json") {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Candidates []scheduler.Candidate `json:"candidates"`
				Orders     []order.WorkOrder     `json:"orders"`
			}{plan.Candidates, orders})
		}
		return printPlan(out, plan, orders)
	},
}

func printPlan(out io.Writer, plan *scheduler.Plan, orders []order.WorkOrder) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "TARGET\tACTION\tRATE/UNIT\tMIN\tMAX\tCHANCE")
	for _, c := range plan.Candidates {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%d\t%.2f\n", c.Target, c.Action, c.Rate, c.MinUnits, c.MaxUnits, c.Chance)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "ORDER\tWORKER\tTARGET\tACTION\tUNITS\tMEMORY")
	for i := range orders {
		o := &orders[i]
		a := o.Allocation
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.ID.String()[:8], a.Worker, a.Target, a.Action, a.Units, order.NewConfig(o, order.DefaultImages()).MemoryString())
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "WORKER\tFREE")
	for _, name := range slices.Sorted(maps.Keys(plan.Free)) {
		fmt.Fprintf(tw, "%s\t%s\n", name, units.BytesSize(plan.Free[name]*units.GiB))
	}

	return errors.Wrap(tw.Flush(), "writing plan")
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringP("catalog", "c", "fleet.yaml", "Catalog describing profile, targets and workers")
	planCmd.Flags().StringP("strategy", "s", "greedy", "Scheduling strategy (greedy, extract-only)")
	planCmd.Flags().Int("cores", 1, "Core count growth projections assume")
	planCmd.Flags().Bool("refresh", false, "Ask worker agents for their current capacity")
	planCmd.Flags().Bool("json", false, "Print JSON instead of tables")
}
