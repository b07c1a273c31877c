/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/catalog"
	"fleet/manager"
)

// managerCmd represents the manager command
var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Manager command to operate a fleet manager node.",
	Long: `fleet manager command.

The manager runs a scheduling cycle against the catalog every cycle interval,
dispatches the work orders it emits to worker agents and serves the cycle
reports and metrics over HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := viper.GetString("host")
		port := viper.GetInt("port")

		m, err := manager.New(catalog.FileSource{Path: viper.GetString("catalog")}, manager.Config{
			Strategy:  viper.GetString("strategy"),
			StoreType: viper.GetString("store"),
			DataDir:   viper.GetString("data-dir"),
			Cores:     viper.GetInt("cores"),

			Commission:      viper.GetBool("commission"),
			CommissionFrom:  viper.GetString("commission-from"),
			CommissionDepth: viper.GetInt("commission-depth"),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Errorf("Closing manager stores: %v", err)
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go m.ProcessCycles(ctx, viper.GetDuration("cycle-interval"))
		go m.ProcessOrders(ctx, viper.GetDuration("dispatch-interval"))
		go m.UpdateOrders(ctx, viper.GetDuration("update-interval"))

		log.Printf("Starting manager API on http://%s:%d", host, port)
		api := manager.API{Address: host, Port: port, Manager: m}

		errc := make(chan error, 1)
		go func() { errc <- api.Start() }()

		select {
		case <-ctx.Done():
			log.Info("Shutting down manager")
			return nil
		case err := <-errc:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(managerCmd)

	managerCmd.Flags().StringP("host", "H", "0.0.0.0", "Hostname or IP address")
	managerCmd.Flags().IntP("port", "p", 5555, "Port on which to listen")
	managerCmd.Flags().StringP("catalog", "c", "fleet.yaml", "Catalog describing profile, targets and workers")
	managerCmd.Flags().StringP("strategy", "s", "greedy", "Scheduling strategy (greedy, extract-only)")
	managerCmd.Flags().StringP("store", "d", "memory", "Store type (memory, persistent)")
	managerCmd.Flags().String("data-dir", ".", "Directory for persistent store files")
	managerCmd.Flags().Int("cores", 1, "Core count growth projections assume")
	managerCmd.Flags().Bool("commission", false, "Root reachable hosts before each cycle and add those with capacity as workers")
	managerCmd.Flags().String("commission-from", "home", "Host commissioning crawls from")
	managerCmd.Flags().Int("commission-depth", 3, "Hops commissioning crawls")
	managerCmd.Flags().Duration("cycle-interval", defaultCycleInterval, "Delay between scheduling cycles")
	managerCmd.Flags().Duration("dispatch-interval", defaultDispatchInterval, "Delay between dispatch rounds")
	managerCmd.Flags().Duration("update-interval", defaultUpdateInterval, "Delay between order status checks")
}
