package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "rehydra",
	Short:         "Compile, render and rehydrate templates",
	Long:          "Render templates to markup with rehydration markers, then adopt that markup again.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		processGlobalFlags()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("output") == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"version": version,
				"commit":  commit,
				"date":    date,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rehydra %s (%s, %s)\n", version, commit, date)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rehydra.toml)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("log-level", "", "Log render events at this level to stderr")
	pf.Int("max-frame-depth", 0, "Limit how deeply components and blocks nest")
	pf.StringP("output", "o", "", "Output format (json, text)")
	for _, name := range []string{"no-color", "log-level", "max-frame-depth", "output"} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}
	if err := rootCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(outputFormats, cobra.ShellCompDirectiveNoFileComp)); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(renderCmd, hydrateCmd, disCmd, markersCmd, versionCmd)
}

// initConfig reads the config file and REHYDRA_* environment variables.
// A missing default config file is not an error.
func initConfig() {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			fatal(err)
		}
		viper.SetConfigFile(path)
	} else {
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".rehydra")
		viper.SetConfigType("toml")
	}
	viper.SetEnvPrefix("rehydra")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fatal(fmt.Errorf("config: %w", err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
	os.Exit(0)
}
