package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"librarian/internal/circulation"
)

const dateLayout = "2006-01-02"

func (a *app) loanCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "loan", Short: "Issue and return books"}
	cmd.AddCommand(a.loanIssueCmd(), a.loanReturnCmd(), a.loanListCmd(), a.loanOverdueCmd(), a.loanHistoryCmd())
	return cmd
}

func loanFlags(cmd *cobra.Command, book, member *string) {
	cmd.Flags().StringVar(book, "book", "", "book id")
	cmd.Flags().StringVar(member, "member", "", "member id")
	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("member")
}

func parsePair(op, book, member string) (uuid.UUID, uuid.UUID, error) {
	bookID, err := parseID(op, book)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	memberID, err := parseID(op, member)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return bookID, memberID, nil
}

func (a *app) loanIssueCmd() *cobra.Command {
	var book, member string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Lend a copy of a book to a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookID, memberID, err := parsePair("loan.issue", book, member)
			if err != nil {
				return err
			}
			loan, err := a.svc.Circulation.IssueBook(cmd.Context(), bookID, memberID)
			if err != nil {
				return err
			}
			a.printf("issued loan %s, due %s", loan.ID, loan.DueDate.Format(dateLayout))
			return nil
		},
	}
	loanFlags(cmd, &book, &member)
	return cmd
}

func (a *app) loanReturnCmd() *cobra.Command {
	var book, member string
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return a member's copy of a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookID, memberID, err := parsePair("loan.return", book, member)
			if err != nil {
				return err
			}
			loan, err := a.svc.Circulation.ReturnBook(cmd.Context(), bookID, memberID)
			if err != nil {
				return err
			}
			a.printf("returned loan %s, fine %s", loan.ID, loan.FineAmount.StringFixed(2))
			return nil
		},
	}
	loanFlags(cmd, &book, &member)
	return cmd
}

func (a *app) loanListCmd() *cobra.Command {
	var book, member string
	var open bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := circulation.LoanFilter{OpenOnly: open}
			if book != "" {
				id, err := parseID("loan.list", book)
				if err != nil {
					return err
				}
				filter.BookID = &id
			}
			if member != "" {
				id, err := parseID("loan.list", member)
				if err != nil {
					return err
				}
				filter.MemberID = &id
			}

			loans, err := a.svc.Circulation.ListLoans(cmd.Context(), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tISSUED\tDUE\tRETURNED\tFINE")
			for _, l := range loans {
				returned := "-"
				if l.ReturnDate != nil {
					returned = l.ReturnDate.Format(dateLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.BookID, l.MemberID,
					l.IssueDate.Format(dateLayout), l.DueDate.Format(dateLayout), returned, l.FineAmount.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&book, "book", "", "only loans of this book")
	cmd.Flags().StringVar(&member, "member", "", "only loans of this member")
	cmd.Flags().BoolVar(&open, "open", false, "only loans not yet returned")
	return cmd
}

func (a *app) loanOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open loans past due with the fine accrued so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loans, err := a.svc.Circulation.OverdueLoans(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tDUE\tDAYS\tFINE")
			for _, l := range loans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", l.ID, l.BookID, l.MemberID,
					l.DueDate.Format(dateLayout), l.DaysOverdue, l.AccruedFine.StringFixed(2))
			}
			return w.Flush()
		},
	}
}

func (a *app) loanHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the recorded events of a loan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("loan.history", args[0])
			if err != nil {
				return err
			}
			history, err := a.svc.Circulation.LoanHistory(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tEVENT\tRECORDED\tDATA")
			for _, e := range history {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Version, e.EventType, e.CreatedAt.Format(time.RFC3339), e.EventData)
			}
			return w.Flush()
		},
	}
}
