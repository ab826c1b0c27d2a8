// Command server runs the CRM resource API.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"crm-backend/internal/config"
)

var (
	// configFile is set by the --config flag.
	configFile string

	cfg    *config.Config
	logger logr.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crm-server",
	Short: "CRM resource API",
	Long: `crm-server exposes the CRM resources (contacts, companies, deals,
opportunities, products and friends) over a JSON API backed by an
in-memory store, a SQL database or a PostgREST-compatible backend.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./app.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = c

	stdr.SetVerbosity(cfg.Log.Verbosity)
	logger = stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("crm")
	return nil
}
