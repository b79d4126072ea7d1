// internal/chaos/experiments.go
package chaos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"librarian/internal/catalog"
	"librarian/internal/clients"
	"librarian/internal/membership"
)

// RegisterExperiments registers the predefined circulation experiments.
func (e *Engine) RegisterExperiments(client *clients.Client, concurrency int) {
	e.RegisterExperiment(ConcurrentIssueLastCopy(client, concurrency))
	e.RegisterExperiment(ConcurrentReturnSameLoan(client, concurrency))
}

func inconsistencies(client *clients.Client) Metric {
	return Metric{
		Name: "inconsistencies",
		Query: func(ctx context.Context) (float64, error) {
			found, err := client.Audit(ctx)
			return float64(len(found)), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func available(client *clients.Client, bookID *uuid.UUID) Metric {
	return Metric{
		Name: "available_quantity",
		Query: func(ctx context.Context) (float64, error) {
			book, err := client.GetBook(ctx, *bookID)
			if err != nil {
				return -1, err
			}
			return float64(book.AvailableQuantity), nil
		},
	}
}

func counter(name string, n *atomic.Int64) Metric {
	return Metric{
		Name:  name,
		Query: func(context.Context) (float64, error) { return float64(n.Load()), nil },
	}
}

// setup creates a book with quantity copies and n members, all tagged with a
// fresh run id so repeated game days do not collide.
func setup(ctx context.Context, client *clients.Client, quantity, n int) (uuid.UUID, []uuid.UUID, error) {
	run := uuid.NewString()[:8]
	book, err := client.AddBook(ctx, catalog.NewBook{
		Title:    "Chaos " + run,
		Author:   "Game Day",
		ISBN:     "chaos-" + run,
		Genre:    "Test",
		Quantity: quantity,
	})
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("add book: %w", err)
	}

	members := make([]uuid.UUID, n)
	for i := range members {
		m, err := client.RegisterMember(ctx, membership.NewMember{
			Name:  fmt.Sprintf("Chaos Reader %d", i),
			Email: fmt.Sprintf("chaos-%s-%d@example.com", run, i),
		})
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("register member: %w", err)
		}
		members[i] = m.ID
	}
	return book.ID, members, nil
}

// ConcurrentIssueLastCopy fires n simultaneous issues of a single copy.
func ConcurrentIssueLastCopy(client *clients.Client, n int) Experiment {
	var bookID uuid.UUID
	var succeeded atomic.Int64

	return Experiment{
		Name:        "concurrent-issue-last-copy",
		Hypothesis:  "Exactly one of many simultaneous issues of the last copy succeeds and the audit stays clean",
		SteadyState: []Metric{inconsistencies(client)},
		Method: []Action{
			{
				Type:   "concurrent-issue",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					succeeded.Store(0)
					book, members, err := setup(ctx, client, 1, n)
					if err != nil {
						return err
					}
					bookID = book

					var wg sync.WaitGroup
					for _, member := range members {
						wg.Add(1)
						go func(member uuid.UUID) {
							defer wg.Done()
							if _, err := client.IssueBook(ctx, book, member); err == nil {
								succeeded.Add(1)
							}
						}(member)
					}
					wg.Wait()
					return nil
				},
			},
		},
		Observe: []Metric{
			available(client, &bookID),
			counter("issue_successes", &succeeded),
		},
		Validation: []Assertion{
			{Metric: "issue_successes", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one issue must succeed"},
			{Metric: "available_quantity", Condition: func(v float64) bool { return v == 0 }, Message: "no copy may remain available"},
			{Metric: "inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "audit must be clean"},
		},
	}
}

// ConcurrentReturnSameLoan issues one copy and fires n simultaneous returns
// of it.
func ConcurrentReturnSameLoan(client *clients.Client, n int) Experiment {
	var bookID uuid.UUID
	var succeeded atomic.Int64

	return Experiment{
		Name:        "concurrent-return-same-loan",
		Hypothesis:  "Exactly one of many simultaneous returns of one loan succeeds and the audit stays clean",
		SteadyState: []Metric{inconsistencies(client)},
		Method: []Action{
			{
				Type:   "concurrent-return",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					succeeded.Store(0)
					book, members, err := setup(ctx, client, 1, 1)
					if err != nil {
						return err
					}
					bookID = book
					if _, err := client.IssueBook(ctx, book, members[0]); err != nil {
						return fmt.Errorf("issue: %w", err)
					}

					var wg sync.WaitGroup
					for i := 0; i < n; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := client.ReturnBook(ctx, book, members[0]); err == nil {
								succeeded.Add(1)
							}
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Observe: []Metric{
			available(client, &bookID),
			counter("return_successes", &succeeded),
		},
		Validation: []Assertion{
			{Metric: "return_successes", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one return must succeed"},
			{Metric: "available_quantity", Condition: func(v float64) bool { return v == 1 }, Message: "the copy must be back on the shelf"},
			{Metric: "inconsistencies", Condition: func(v float64) bool { return v == 0 }, Message: "audit must be clean"},
		},
	}
}
