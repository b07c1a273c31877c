/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleet/manager"
	"fleet/worker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scheduling cycle now",
	Long: `fleet run command.

The run command asks a running manager to perform a scheduling cycle right
away and prints the resulting report.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := viper.GetString("manager")
		log.Printf("Using manager: %v", m)

		url := fmt.Sprintf("http://%s/cycles", m)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return errors.Wrapf(err, "contacting manager %s", m)
		}
		defer resp.Body.Close()

		d := json.NewDecoder(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			e := worker.ErrResponse{}
			if err := d.Decode(&e); err != nil {
				return errors.Errorf("manager responded %d", resp.StatusCode)
			}
			return errors.Errorf("manager responded %d: %s", e.HTTPStatusCode, e.Message)
		}

		var report manager.CycleReport
		if err := d.Decode(&report); err != nil {
			return errors.Wrap(err, "decoding cycle report")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("manager", "m", "localhost:5555", "Manager to talk to")
}
