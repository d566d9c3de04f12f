package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/config"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/internal/scrapers/webboka"
	"tvatt-backend/lib/restyutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const (
	usernameEnv = "TVATT_USERNAME"
	passwordEnv = "TVATT_PASSWORD"
)

var (
	statusUsername *string
	statusPassword *string
	statusDump     *string
)

func init() {
	statusUsername = statusCmd.Flags().StringP("username", "u", "", "Portal username, defaults to $"+usernameEnv+".")
	statusPassword = statusCmd.Flags().StringP("password", "p", "", "Portal password, defaults to $"+passwordEnv+".")
	statusDump = statusCmd.Flags().String("dump", "", "Write every portal request/response to this directory (credentials redacted).")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [-u <username>] [-p <password>]",
	Short: "Logs in, scrapes the machine status page once and prints it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := firstNonEmpty(*statusUsername, os.Getenv(usernameEnv))
		password := firstNonEmpty(*statusPassword, os.Getenv(passwordEnv))
		if username == "" || password == "" {
			return fmt.Errorf("missing credentials, use --username/--password or $%s/$%s", usernameEnv, passwordEnv)
		}

		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			return err
		}
		var dump restyutil.Output
		if *statusDump != "" {
			dump, err = restyutil.NewFilesystemOutput(*statusDump)
			if err != nil {
				return err
			}
		}
		client, err := webboka.NewClient(webboka.ClientOptions{
			BaseUrl:          cfg.BaseUrl,
			CloudflareBypass: cfg.CloudflareBypass,
			Classifier:       cfg.Classifier(),
			Dump:             dump,
			Clock:            clock,
			Tel:              telemetry.SlogAPI{},
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout)
		defer cancel()

		cookie, err := client.Login(ctx, username, password)
		if err != nil {
			return err
		}
		result, err := client.Scrape(ctx, cookie)
		if err != nil {
			return err
		}

		renderStatus(cmd.OutOrStdout(), result)
		return nil
	},
}

func renderStatus(out io.Writer, result laundry.ScrapeResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Group", "Machine", "State", "Status", "Ready"})

	for _, group := range result {
		for _, machine := range group.Machines {
			ready := ""
			if machine.ReadyAt != nil {
				ready = machine.ReadyAt.Format("15:04")
			}
			t.AppendRow(table.Row{group.Name, machine.Name, machine.State, machine.Status, ready})
		}
		t.AppendSeparator()
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
