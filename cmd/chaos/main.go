// cmd/chaos/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"librarian/internal/chaos"
	"librarian/internal/clients"
)

func main() {
	var (
		apiURL      string
		username    string
		concurrency int
		pause       time.Duration
	)

	cmd := &cobra.Command{
		Use:           "chaos",
		Short:         "Run circulation game day experiments against a live API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv("LIBRARIAN_PASSWORD")
			if password == "" {
				return errors.New("LIBRARIAN_PASSWORD must be set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := clients.NewClient(apiURL)
			if err := client.Login(ctx, username, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			engine := chaos.NewEngine(cmd.OutOrStdout())
			engine.RegisterExperiments(client, concurrency)

			held, err := engine.ExecuteGameDay(ctx, chaos.GameDay{
				Name:      "Circulation game day",
				Date:      time.Now(),
				Scenarios: engine.Experiments(),
				Pause:     pause,
			})
			if err != nil {
				return err
			}
			if !held {
				return errors.New("at least one hypothesis was violated")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&username, "user", "admin", "username to log in with")
	cmd.Flags().IntVar(&concurrency, "concurrency", 32, "simultaneous requests per experiment")
	cmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "pause between experiments")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
