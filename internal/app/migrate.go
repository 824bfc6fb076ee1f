package app

import (
	"context"
	"fmt"
)

// Migrate applies pending schema migrations and lists what ran.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	rt, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return nil, err
	}
	applied, err := rt.store.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		fmt.Fprintln(a.Out, "schema up to date")
		return applied, nil
	}
	for _, name := range applied {
		fmt.Fprintf(a.Out, "applied %s\n", name)
	}
	return applied, nil
}
