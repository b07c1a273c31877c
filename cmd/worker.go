/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/order"
	"fleet/worker"
)

const (
	defaultCycleInterval    = 30 * time.Second
	defaultDispatchInterval = 5 * time.Second
	defaultUpdateInterval   = 15 * time.Second
	defaultStatsInterval    = 15 * time.Second
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker command to operate a fleet worker node.",
	Long: `fleet worker command.

The worker runs the work orders a manager sends it and reports its capacity
through its stats endpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := viper.GetString("host")
		port := viper.GetInt("port")
		name := viper.GetString("name")
		if name == "" {
			name = "worker-" + uuid.New().String()[:8]
		}

		capacity := 0.0
		if size := viper.GetString("capacity"); size != "" {
			b, err := units.RAMInBytes(size)
			if err != nil {
				return errors.Wrap(err, "invalid capacity")
			}
			capacity = float64(b) / units.GiB
		}

		var runner order.Runner
		switch rt := viper.GetString("runtime"); rt {
		case "docker":
			runner = &order.DockerRunner{Images: order.DefaultImages()}
		case "sim":
			runner = &order.SimRunner{}
		default:
			return errors.Errorf("unknown runtime %q", rt)
		}

		w := worker.New(name, runner, capacity)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go w.RunOrders(ctx, time.Second)
		go w.UpdateOrders(ctx, defaultUpdateInterval)
		go w.CollectStats(ctx, defaultStatsInterval)

		log.Printf("Starting worker %s on http://%s:%d", name, host, port)
		api := worker.API{Address: host, Port: port, Worker: w}

		errc := make(chan error, 1)
		go func() { errc <- api.Start() }()

		select {
		case <-ctx.Done():
			log.Info("Shutting down worker")
			return nil
		case err := <-errc:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringP("host", "H", "0.0.0.0", "Hostname or IP address")
	workerCmd.Flags().IntP("port", "p", 5556, "Port on which to listen")
	workerCmd.Flags().StringP("name", "n", "", "Name of the worker, as the catalog lists it")
	workerCmd.Flags().String("capacity", "", "Capacity offered to the fleet, e.g. 16GiB (default all memory)")
	workerCmd.Flags().String("runtime", "docker", "How orders run (docker, sim)")
}
