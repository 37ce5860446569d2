package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Lists the courses on the logged-in user's entry page.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createClient(ctx)

		courses, err := course.Mine(ctx, client)
		if err != nil {
			serviceutil.Fatal("failed to list courses", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Number", "Admin", "URL"})
		for _, c := range courses {
			t.AppendRow(table.Row{c.Number, c.IsAdmin, c.Url})
		}
		t.Render()
	},
}
