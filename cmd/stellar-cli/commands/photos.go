package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"stellar/lib/scrapers/stellar/members"
	"stellar/lib/serviceutil"
)

var photosOut *string

func init() {
	photosOut = photosCmd.Flags().String("out", "", "A directory to download the photos into.")
	rootCmd.AddCommand(photosCmd)
}

var photosCmd = &cobra.Command{
	Use:   "photos --course <number> --year <year> [--semester <term>] [--out <dir>]",
	Short: "Lists the member photos of a course, optionally downloading them.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createClient(ctx)
		c := openCourse(ctx, client)

		m, err := members.New(ctx, c)
		if err != nil {
			serviceutil.Fatal("failed to open membership", err)
		}
		photos, err := m.Photos(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list photos", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Email", "URL"})
		for _, p := range photos.All() {
			t.AppendRow(table.Row{p.Name, p.Email, p.Url})
		}
		t.Render()

		if *photosOut == "" {
			return
		}
		if err := os.MkdirAll(*photosOut, 0755); err != nil {
			serviceutil.Fatal("failed to create output directory", err)
		}
		for _, p := range photos.All() {
			data, err := p.Data(ctx)
			if err != nil {
				serviceutil.Fatal("failed to download photo", err)
			}
			path := filepath.Join(*photosOut, p.Email+".jpg")
			if err := os.WriteFile(path, data, 0644); err != nil {
				serviceutil.Fatal("failed to write photo", err)
			}
			slog.Info("downloaded photo", "email", p.Email, "path", path)
		}
	},
}
