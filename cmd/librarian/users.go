package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"librarian/internal/credential"
)

const newPasswordEnv = "LIBRARIAN_NEW_PASSWORD"

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage operator accounts"}
	cmd.AddCommand(a.userAddCmd())
	return cmd
}

// userAddCmd creates an account. The first account needs no login.
func (a *app) userAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "add <username>",
		Short:       "Create an operator account",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipAuth: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			has, err := a.svc.Credential.HasUsers(ctx)
			if err != nil {
				return err
			}
			if has {
				if err := a.authenticate(cmd); err != nil {
					return err
				}
			}

			password, err := a.newPassword(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.Credential.Provision(ctx, credential.NewUser{Username: args[0], Password: password}); err != nil {
				return err
			}
			a.printf("added user %s", args[0])
			return nil
		},
	}
}

func (a *app) newPassword(username string) (string, error) {
	if p, ok := lookupEnv(newPasswordEnv); ok {
		return p, nil
	}
	first, err := a.prompt(fmt.Sprintf("New password for %s: ", username))
	if err != nil {
		return "", err
	}
	second, err := a.prompt("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
