package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stellar/lib/scrapers/stellar/gradebook"
	"stellar/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(studentsCmd)
}

var studentsCmd = &cobra.Command{
	Use:   "students --course <number> --year <year> [--semester <term>]",
	Short: "Lists the gradebook roster of a course.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createClient(ctx)
		c := openCourse(ctx, client)

		gb, err := gradebook.New(ctx, c)
		if err != nil {
			serviceutil.Fatal("failed to open gradebook", err)
		}
		students, err := gb.Students(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list students", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Email"})
		for _, s := range students.All() {
			t.AppendRow(table.Row{s.Name, s.Email})
		}
		t.Render()
	},
}
