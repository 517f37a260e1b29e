package commands

import (
	"context"
	"fmt"
	"gradewatch/lib/configutil"
	"gradewatch/lib/restyutil"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/serviceutil"
	"gradewatch/lib/telemetry"
	"os"

	"github.com/spf13/cobra"
)

var configPath *string
var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "gradewatch",
	Short: "gradewatch watches the USTC grade sheet and emails you when it changes.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
		if *verbose {
			jiaowu.SetRestyInstrumentOutput(
				restyutil.NewFilesystemOutput(".dev/resty/jiaowu"),
			)
		}
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the config file.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging/instrumentation.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	return cfg
}
