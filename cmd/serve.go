package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlahti/bookfetch/internal/batch"
	"github.com/mlahti/bookfetch/internal/config"
	"github.com/mlahti/bookfetch/internal/httpapi"
	"github.com/mlahti/bookfetch/internal/providers/googlebooks"
	"github.com/mlahti/bookfetch/internal/providers/openlibrary"
	"github.com/mlahti/bookfetch/internal/search"
)

// ServeCmd serves the HTTP API for the scheduler and operators.
type ServeCmd struct {
	Addr string `help:"Listen address (defaults to server.addr from config)"`
}

func (s *ServeCmd) Run() error {
	addr := s.Addr
	if addr == "" {
		addr = config.ServerAddr
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("opening book store: %w", err)
	}
	defer func() { _ = st.Close() }()

	resolver := buildResolver()
	agg := search.New(st, googlebooks.New(), openlibrary.New())
	job := batch.New(st, resolver)

	providers := buildProviders()
	pingers := make([]httpapi.Pinger, len(providers))
	for i, p := range providers {
		pingers[i] = p
	}

	server := httpapi.NewServer(resolver, agg, job, pingers, httpapi.Config{
		SchedulerToken: config.SchedulerToken,
		AdminToken:     config.AdminToken,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Serving API", "addr", addr)
	return httpServer.ListenAndServe()
}
