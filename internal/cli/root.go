// Package cli wires configuration, logging and the relay and tagger
// components into the glassmon commands.
package cli

import (
	"github.com/spf13/cobra"
	"glassmon/internal/config"
)

// RootCmd returns the glassmon command tree.
func RootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "glassmon",
		Short: "Glass defect monitoring relay and tagger",
		Long: `glassmon relays live frames and status from inspection devices to
dashboards over Socket.IO, and numbers newly detected defects in detection
order, burning the number into each defect image.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")

	load := func() (config.Config, error) {
		return config.LoadConfigFromEnv(overlayEnv{base: config.OSEnv(), values: map[string]string{"CONFIG_FILE": configFile}})
	}

	cmd.AddCommand(ServeCmd(load))
	cmd.AddCommand(TagOnceCmd(load))
	return cmd
}

type loadFunc func() (config.Config, error)

// overlayEnv lets command-line flags take the place of environment
// variables. Empty values fall through to base.
type overlayEnv struct {
	base   config.Env
	values map[string]string
}

func (e overlayEnv) Getenv(key string) string {
	if v := e.values[key]; v != "" {
		return v
	}
	return e.base.Getenv(key)
}
