package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stellar/lib/scrapers/stellar/gradebook"
	"stellar/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(assignmentsCmd)
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments --course <number> --year <year> [--semester <term>]",
	Short: "Lists the gradebook assignments of a course.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createClient(ctx)
		c := openCourse(ctx, client)

		gb, err := gradebook.New(ctx, c)
		if err != nil {
			serviceutil.Fatal("failed to open gradebook", err)
		}
		assignments, err := gb.Assignments(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list assignments", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "URL"})
		for _, a := range assignments.All() {
			t.AppendRow(table.Row{a.Name, a.Url})
		}
		t.Render()
	},
}
