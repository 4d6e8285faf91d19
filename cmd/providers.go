package cmd

import (
	"github.com/mlahti/bookfetch/internal/book"
	"github.com/mlahti/bookfetch/internal/config"
	"github.com/mlahti/bookfetch/internal/providers/googlebooks"
	"github.com/mlahti/bookfetch/internal/providers/isbndb"
	"github.com/mlahti/bookfetch/internal/providers/openlibrary"
	"github.com/mlahti/bookfetch/internal/resolve"
	"github.com/mlahti/bookfetch/internal/store"
)

// buildProviders returns the provider chain in resolution order.
func buildProviders() []book.Provider {
	return []book.Provider{
		isbndb.New(),      // primary, skipped when no API key is configured
		googlebooks.New(), // first fallback
		openlibrary.New(), // last fallback
	}
}

func buildResolver() *resolve.Resolver {
	return resolve.New(buildProviders()...)
}

func openStore() (*store.Store, error) {
	return store.Open(config.StorePath)
}
