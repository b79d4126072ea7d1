package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"librarian/internal/apperr"
	"librarian/internal/catalog"
)

func parseID(op, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validationf(op, "invalid id %q", raw)
	}
	return id, nil
}

func (a *app) bookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage the catalog"}
	cmd.AddCommand(a.bookAddCmd(), a.bookSearchCmd(), a.bookUpdateCmd(), a.bookRemoveCmd())
	return cmd
}

func (a *app) bookAddCmd() *cobra.Command {
	var nb catalog.NewBook
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			book, err := a.svc.Catalog.AddBook(cmd.Context(), nb)
			if err != nil {
				return err
			}
			a.printf("added book %s", book.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nb.Title, "title", "", "title")
	cmd.Flags().StringVar(&nb.Author, "author", "", "author")
	cmd.Flags().StringVar(&nb.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&nb.Genre, "genre", "", "genre")
	cmd.Flags().IntVar(&nb.Quantity, "quantity", 1, "copies owned")
	return cmd
}

func (a *app) bookSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [term]",
		Short: "Search books by title, author, genre, isbn or id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := a.svc.Catalog.SearchBooks(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tISBN\tGENRE\tAVAILABLE")
			for _, b := range books {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\n", b.ID, b.Title, b.Author, b.ISBN, b.Genre, b.AvailableQuantity, b.Quantity)
			}
			return w.Flush()
		},
	}
}

func (a *app) bookUpdateCmd() *cobra.Command {
	var upd catalog.BookUpdate
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a book; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "book.update"
			id, err := parseID(op, args[0])
			if err != nil {
				return err
			}
			current, err := a.svc.Catalog.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("title") {
				upd.Title = current.Title
			}
			if !flags.Changed("author") {
				upd.Author = current.Author
			}
			if !flags.Changed("genre") {
				upd.Genre = current.Genre
			}
			if !flags.Changed("quantity") {
				upd.Quantity = current.Quantity
			}

			result, err := a.svc.Catalog.UpdateBook(cmd.Context(), id, upd)
			if err != nil {
				return err
			}
			if !result.Changed {
				a.printf("book %s unchanged", id)
				return nil
			}
			a.printf("updated book %s", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&upd.Title, "title", "", "title")
	cmd.Flags().StringVar(&upd.Author, "author", "", "author")
	cmd.Flags().StringVar(&upd.Genre, "genre", "", "genre")
	cmd.Flags().IntVar(&upd.Quantity, "quantity", 0, "copies owned")
	return cmd
}

func (a *app) bookRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a book with no loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book.remove", args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Catalog.RemoveBook(cmd.Context(), id); err != nil {
				return err
			}
			a.printf("removed book %s", id)
			return nil
		},
	}
}
