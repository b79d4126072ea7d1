package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"librarian/internal/membership"
)

func (a *app) memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage members"}
	cmd.AddCommand(a.memberRegisterCmd(), a.memberSearchCmd(), a.memberUpdateCmd(), a.memberRemoveCmd())
	return cmd
}

func (a *app) memberRegisterCmd() *cobra.Command {
	var nm membership.NewMember
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			member, err := a.svc.Membership.RegisterMember(cmd.Context(), nm)
			if err != nil {
				return err
			}
			a.printf("registered member %s", member.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nm.Name, "name", "", "full name")
	cmd.Flags().StringVar(&nm.Email, "email", "", "email address")
	cmd.Flags().StringVar(&nm.PhoneNumber, "phone", "", "phone number")
	return cmd
}

func (a *app) memberSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [term]",
		Short: "Search members by name, email or id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.svc.Membership.SearchMembers(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tREGISTERED")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Email, m.PhoneNumber, m.RegistrationDate.Format(dateLayout))
			}
			return w.Flush()
		},
	}
}

func (a *app) memberUpdateCmd() *cobra.Command {
	var upd membership.MemberUpdate
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a member's contact details; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member.update", args[0])
			if err != nil {
				return err
			}
			current, err := a.svc.Membership.GetMember(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("name") {
				upd.Name = current.Name
			}
			if !flags.Changed("email") {
				upd.Email = current.Email
			}
			if !flags.Changed("phone") {
				upd.PhoneNumber = current.PhoneNumber
			}

			result, err := a.svc.Membership.UpdateMember(cmd.Context(), id, upd)
			if err != nil {
				return err
			}
			if !result.Changed {
				a.printf("member %s unchanged", id)
				return nil
			}
			a.printf("updated member %s", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&upd.Name, "name", "", "full name")
	cmd.Flags().StringVar(&upd.Email, "email", "", "email address")
	cmd.Flags().StringVar(&upd.PhoneNumber, "phone", "", "phone number")
	return cmd
}

func (a *app) memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a member with no loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("member.remove", args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Membership.RemoveMember(cmd.Context(), id); err != nil {
				return err
			}
			a.printf("removed member %s", id)
			return nil
		},
	}
}
