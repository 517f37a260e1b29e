package commands

import (
	"encoding/json"
	"fmt"
	"gradewatch/lib/notify"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/serviceutil"

	"github.com/spf13/cobra"
)

var fetchJson *bool

func init() {
	fetchJson = fetchCmd.Flags().Bool("json", false, "Print the snapshot as json instead of tables.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--json]",
	Short: "Logs in, fetches the grade sheet once and prints it.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		opts, err := cfg.gradeOptions()
		if err != nil {
			serviceutil.Fatal("jiaowu config", err)
		}

		grade, err := jiaowu.GetGrade(cmd.Context(), opts)
		if err != nil {
			serviceutil.Fatal("get grade", err)
		}

		if *fetchJson {
			out, err := json.MarshalIndent(grade, "", "  ")
			if err != nil {
				serviceutil.Fatal("marshal grade", err)
			}
			fmt.Println(string(out))
			return
		}
		fmt.Print(notify.RenderText(grade))
	},
}
