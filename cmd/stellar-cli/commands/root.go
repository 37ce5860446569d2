package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stellar/lib/configutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/serviceutil"
)

// Config carries portal credentials: either a kerberos identity or the
// paths of an already issued certificate pair.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Cert     string `json:"cert"`
	Key      string `json:"key"`
}

var (
	courseNumber   *string
	courseYear     *int
	courseSemester *string
)

var rootCmd = &cobra.Command{
	Use:   "stellar-cli",
	Short: "stellar-cli is a CLI for inspecting course portal data.",
}

func init() {
	courseNumber = rootCmd.PersistentFlags().String("course", "", "The course number, e.g. 6.006.")
	courseYear = rootCmd.PersistentFlags().Int("year", 0, "The course's year, e.g. 2011.")
	courseSemester = rootCmd.PersistentFlags().String("semester", "fa", "The course's term: fa, sp, su or ia.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createClient(ctx context.Context) *core.Client {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	if cfg.Cert != "" {
		cert, err := core.LoadCertificate(cfg.Cert, cfg.Key)
		if err != nil {
			serviceutil.Fatal("failed to load certificate", err)
		}
		client, err := core.NewClient(ctx, core.ClientOptions{Certificate: &cert})
		if err != nil {
			serviceutil.Fatal("failed to initialize client", err)
		}
		if err := client.LoginCertificate(ctx); err != nil {
			serviceutil.Fatal("failed to login with certificate", err)
		}
		return client
	}

	slog.Info("logging in", "username", cfg.Username)
	client, err := core.NewClient(ctx, core.ClientOptions{})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}
	if err := client.LoginKerberos(ctx, cfg.Username, cfg.Password); err != nil {
		serviceutil.Fatal("failed to login", err)
	}
	return client
}

func parseSemester(code string) course.Semester {
	switch strings.ToLower(code) {
	case "fa":
		return course.Fall
	case "sp":
		return course.Spring
	case "su":
		return course.Summer
	case "ia":
		return course.IAP
	}
	serviceutil.Fatal("invalid semester", fmt.Errorf("unknown term code %q", code))
	return course.Fall
}

func openCourse(ctx context.Context, client *core.Client) *course.Course {
	if *courseNumber == "" || *courseYear == 0 {
		serviceutil.Fatal("missing course coordinates", fmt.Errorf("--course and --year are required"))
	}
	c, err := course.ForTerm(ctx, client, *courseNumber, *courseYear, parseSemester(*courseSemester))
	if err != nil {
		serviceutil.Fatal("failed to open course", err)
	}
	return c
}
