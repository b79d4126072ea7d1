// cmd/librarian/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"librarian/internal/apperr"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", apperr.Reason(err))
		os.Exit(1)
	}
}
