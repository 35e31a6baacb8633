package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evidentlabs/beacon/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - evidence-gated project risk reports",
	Long: `Beacon turns raw project communication exports into a short executive
report of emerging risks and unresolved action items, each backed by
verifiable citations into the ingested corpus.

Nothing reaches a report without evidence: every item cites file and line
spans that survive local re-checking, and every score is computed from
corpus facts rather than trusted from a model.

Typical flow:
  beacon ingest data/raw     parse, redact, and chunk the exports
  beacon index               embed the chunks for similarity retrieval
  beacon report              run the analysis pipeline`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Beacon.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("beacon v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./beacon.yaml, then $HOME/.beacon.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	logger.SetVerbose(verbose)

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search the working directory first, then the home fallback
		viper.SetConfigName("beacon")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// Read in environment variables that match BEACON_*
	viper.SetEnvPrefix("BEACON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	err := viper.ReadInConfig()
	if err != nil && cfgFile == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			fallback := filepath.Join(home, ".beacon.yaml")
			if _, serr := os.Stat(fallback); serr == nil {
				viper.SetConfigFile(fallback)
				err = viper.ReadInConfig()
			}
		}
	}
	if err == nil {
		logger.Debug("using config file %s", viper.ConfigFileUsed())
	}
}
