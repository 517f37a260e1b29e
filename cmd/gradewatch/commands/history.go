package commands

import (
	"fmt"
	"gradewatch/cmd/gradewatch/utils"
	"gradewatch/lib/gradestore"
	"gradewatch/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int64

func init() {
	historyLimit = historyCmd.Flags().Int64("limit", 10, "How many snapshots to print.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>]",
	Short: "Prints the stored snapshot history, newest first.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		db, err := cfg.database().OpenDB(gradestore.Schema)
		if err != nil {
			serviceutil.Fatal("open database", err)
		}
		defer db.Close()

		store := gradestore.NewStore(db)
		snapshots, err := store.History(cmd.Context(), cfg.Jiaowu.Username, *historyLimit)
		if err != nil {
			serviceutil.Fatal("read history", err)
		}
		if len(snapshots) == 0 {
			fmt.Println("No snapshots stored yet.")
			return
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"time", "gpa", "semester gpa", "credits", "courses"})
		for _, snapshot := range snapshots {
			courses := 0
			for _, semester := range snapshot.Grade.Scores {
				courses += len(semester.Courses)
			}
			t.AppendRow(table.Row{
				snapshot.Time.Format(time.DateTime),
				snapshot.Grade.Gpa,
				snapshot.Grade.SemGpa,
				snapshot.Grade.Credits,
				courses,
			})
		}
		t.Render()
	},
}
