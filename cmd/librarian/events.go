package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"librarian/internal/store"
	"librarian/pkg/eventstore"
)

func (a *app) eventsCmd() *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through every recorded event in append order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			const op = "events.stream"
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			feed, err := eventstore.NewEventStore().StreamEvents(cmd.Context(), a.store.DB(), after, limit)
			if err != nil {
				return store.Classify(op, err)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tAGGREGATE\tVERSION\tEVENT\tRECORDED")
			for _, e := range feed {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", e.ID, e.AggregateType, e.AggregateID,
					e.Version, e.EventType, e.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only events with an id above this one")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	return cmd
}
