package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/backstage/services/airlogistic/config"
)

var (
	cfgPath string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "airlogistic-service",
	Short: "Air logistics workflow service",
	Long:  `A service managing flight schedules, cargo bin assignments and sample record workflows`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "directory containing config.yaml")
}

func initConfig() {
	var err error

	cfg, err = config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}
