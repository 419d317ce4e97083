package command

// root.go defines the root command for fcpd and its global flags.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string // TOML overlay file, FCPD_CONFIG_FILE when empty

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fcpd",
	Short: "fcpd - FUDI bridge between Pure-Data and a CAD document",
	Long: `fcpd serves a Pure-Data patch over FUDI. The patch connects to the command
port, asks the server to connect back with "initrcv <port>", and then queries
and drives the document: properties, selection, observers, placements and the
controller objects.

Use "fcpd serve" to run the bridge and "fcpd send" to talk to one from a shell.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (overrides the environment)")
}
