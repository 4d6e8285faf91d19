package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mlahti/bookfetch/internal/book"
)

const pingTimeout = 10 * time.Second

// PingCmd checks connectivity to each configured provider.
type PingCmd struct{}

func (p *PingCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	failed := 0
	for _, provider := range buildProviders() {
		err := provider.Ping(ctx)
		switch {
		case err == nil:
			fmt.Printf("%-12s ok\n", provider.Name())
		case errors.Is(err, book.ErrNotConfigured):
			fmt.Printf("%-12s skipped (no API key)\n", provider.Name())
		default:
			fmt.Printf("%-12s FAILED: %v\n", provider.Name(), err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d provider(s) unreachable", failed)
	}
	return nil
}
