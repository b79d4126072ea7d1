package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check that book availability agrees with open loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			found, err := a.svc.Auditor.Check(cmd.Context())
			if err != nil {
				return err
			}
			if len(found) == 0 {
				a.printf("audit clean")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tBOOK\tDETAIL")
			for _, inc := range found {
				fmt.Fprintf(w, "%s\t%s\t%s\n", inc.Kind, inc.BookID, inc.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%d inconsistencies found", len(found))
		},
	}
}
