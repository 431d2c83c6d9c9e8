package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "icecap",
	Short: "A REST table-metadata catalog for Iceberg tables",
	Long: `Icecap is a REST catalog for Iceberg-style table metadata. It tracks
namespaces, tables, schemas, snapshots and refs in an embedded SQLite
database and serves them over the Iceberg REST catalog protocol.`,
	Version: "0.1.0",
}

var configFile string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "icecap.yml", "path to the configuration file")
}
