/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/catalog"
	"fleet/topology"
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "List reachable hosts, optionally taking control of them",
	Long: `fleet crawl command.

The crawl command walks the host graph in the catalog from a starting host and
lists the hosts it reaches. With --commission it tries to gain root on every
reachable host that does not have it yet and reports the outcome per host.
That is a dry run: the catalog is not changed. Run the manager with
--commission to add rooted hosts with capacity to the fleet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.Load(viper.GetString("catalog"))
		if err != nil {
			return err
		}
		g := c.Graph()
		host := viper.GetString("from")
		depth := viper.GetInt("depth")
		out := cmd.OutOrStdout()

		if viper.GetBool("commission") {
			for _, r := range topology.CommissionAll(g, g, host, depth, c.Profile) {
				fmt.Fprintf(out, "%s\t%s\t%s\n", r.Host, r.Outcome, r.Reason)
			}
			return nil
		}

		var opts []topology.Option
		switch rooted := viper.GetString("rooted"); rooted {
		case "", "any":
		case "true", "false":
			opts = append(opts, topology.Rooted(rooted == "true"))
		default:
			return errors.Errorf("--rooted must be any, true or false, got %q", rooted)
		}
		if prefix := viper.GetString("prefix"); prefix != "" {
			opts = append(opts, topology.NamePredicate(func(name string) bool {
				return strings.HasPrefix(name, prefix)
			}))
		}
		f, err := topology.NewFilter(opts...)
		if err != nil {
			return err
		}

		for _, name := range topology.Crawl(g, host, depth, f) {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringP("catalog", "c", "fleet.yaml", "Catalog describing the host graph")
	crawlCmd.Flags().String("from", "home", "Host to start from")
	crawlCmd.Flags().Int("depth", 3, "Maximum hops from the starting host")
	crawlCmd.Flags().String("rooted", "any", "Keep only hosts with (true) or without (false) root access")
	crawlCmd.Flags().String("prefix", "", "Keep only hosts whose name starts with this")
	crawlCmd.Flags().Bool("commission", false, "Try to gain root on every reachable host that lacks it")
}
