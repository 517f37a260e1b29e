package commands

import (
	"gradewatch/cmd/gradewatch/utils"
	"gradewatch/lib/scrapers/jiaowu"
	"gradewatch/lib/serviceutil"
	"log/slog"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(semestersCmd)
}

var semestersCmd = &cobra.Command{
	Use:   "semesters",
	Short: "Prints the semester catalog and checks the configured names against it.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		opts, err := cfg.gradeOptions()
		if err != nil {
			serviceutil.Fatal("jiaowu config", err)
		}

		ctx := cmd.Context()
		client, err := jiaowu.NewClient(ctx, opts.ClientOptions)
		if err != nil {
			serviceutil.Fatal("init client", err)
		}
		err = client.LoginUsernamePassword(ctx, opts.Username, opts.Password)
		if err != nil {
			serviceutil.Fatal("login", err)
		}
		catalog, err := client.Semesters(ctx)
		if err != nil {
			serviceutil.Fatal("fetch semesters", err)
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"id", "name", "english", "school year", "current"})
		names := make([]string, len(catalog))
		for i, s := range catalog {
			names[i] = s.NameZh
			current := ""
			if s.Current {
				current = "yes"
			}
			t.AppendRow(table.Row{s.Id, s.NameZh, s.NameEn, s.SchoolYear, current})
		}
		t.Render()

		for _, want := range cfg.Jiaowu.Semesters {
			if slices.Contains(names, want) {
				continue
			}
			slog.Warn(
				"configured semester is not in the catalog",
				"name", want,
				"closest", jiaowu.ClosestSemester(catalog, want),
			)
		}
	},
}
