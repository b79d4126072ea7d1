package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"librarian/internal/config"
	"librarian/internal/logging"
	"librarian/internal/server"
	"librarian/internal/store"
)

const passwordEnv = "LIBRARIAN_PASSWORD"

// skipAuth marks commands that decide on authentication themselves.
const skipAuth = "skip-auth"

// app is the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer

	user   string
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	svc    server.Services
}

func newApp(stdin io.Reader, out, errOut io.Writer) *app {
	return &app{stdin: stdin, out: out, errOut: errOut}
}

// execute runs one command line. The store opened for it is closed whether
// or not the command succeeds.
func (a *app) execute(ctx context.Context, args []string) (err error) {
	root := a.rootCmd()
	root.SetArgs(args)
	defer func() {
		if a.store == nil {
			return
		}
		if cerr := a.store.Close(); err == nil {
			err = cerr
		}
	}()
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Manage books, members and loans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			if cmd.Annotations[skipAuth] == "true" {
				return nil
			}
			return a.authenticate(cmd)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().StringVarP(&a.user, "user", "u", os.Getenv("LIBRARIAN_USER"), "username to authenticate as")

	root.AddCommand(
		a.bookCmd(),
		a.memberCmd(),
		a.loanCmd(),
		a.userCmd(),
		a.auditCmd(),
		a.eventsCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(a.errOut, cfg.Log.Level, "text")

	st, err := store.Open(cmd.Context(), cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.store = st

	a.svc, err = server.NewServices(st, cfg, server.Options{}, a.logger)
	return err
}

func (a *app) authenticate(cmd *cobra.Command) error {
	if a.user == "" {
		return errors.New("--user is required")
	}
	password, err := a.password(fmt.Sprintf("Password for %s: ", a.user))
	if err != nil {
		return err
	}
	return a.svc.Credential.Verify(cmd.Context(), a.user, password)
}

// password reads LIBRARIAN_PASSWORD, falling back to a masked prompt when
// stdin is a terminal.
func (a *app) password(prompt string) (string, error) {
	if p, ok := lookupEnv(passwordEnv); ok {
		return p, nil
	}
	return a.prompt(prompt)
}

func (a *app) prompt(prompt string) (string, error) {
	f, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no terminal to prompt on, set %s", passwordEnv)
	}
	fmt.Fprint(a.errOut, prompt)
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// lookupEnv treats an empty variable as unset.
func lookupEnv(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}
