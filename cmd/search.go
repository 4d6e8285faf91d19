package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mlahti/bookfetch/internal/providers/googlebooks"
	"github.com/mlahti/bookfetch/internal/providers/openlibrary"
	"github.com/mlahti/bookfetch/internal/search"
	"github.com/mlahti/bookfetch/internal/tui"
)

// SearchCmd searches the local store and the fallback providers by free
// text and prints a ranked candidate list.
type SearchCmd struct {
	Query       []string `arg:"" help:"Free-text query"`
	Interactive bool     `short:"i" help:"Pick a candidate interactively"`
}

func (s *SearchCmd) Run() error {
	query := strings.TrimSpace(strings.Join(s.Query, " "))

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("opening book store: %w", err)
	}
	defer func() { _ = st.Close() }()

	agg := search.New(st, googlebooks.New(), openlibrary.New())
	candidates, source, err := agg.Search(context.Background(), query)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No results")
		return nil
	}

	if s.Interactive {
		return s.pick(query, candidates)
	}

	fmt.Printf("results from %s:\n", source)
	for _, c := range candidates {
		line := fmt.Sprintf("%3d  %s", c.MatchScore, c.Title)
		if c.Author != "" {
			line += " / " + c.Author
		}
		if c.HasCover {
			line += "  [cover]"
		}
		fmt.Println(line)
	}
	return nil
}

func (s *SearchCmd) pick(query string, candidates []search.Candidate) error {
	result, err := tui.Select(query, candidates)
	if err != nil {
		return err
	}

	switch result.Action {
	case tui.ActionSelected:
		c := result.Selection
		fmt.Printf("title:  %s\n", c.Title)
		if c.Author != "" {
			fmt.Printf("author: %s\n", c.Author)
		}
		if c.PageCount != nil {
			fmt.Printf("pages:  %d\n", *c.PageCount)
		}
		if c.ISBN != nil {
			fmt.Printf("isbn:   %s\n", *c.ISBN)
		}
		if c.CoverURL != nil {
			fmt.Printf("cover:  %s\n", *c.CoverURL)
		}
	case tui.ActionSkipped, tui.ActionStopped, tui.ActionNone:
		fmt.Println("Nothing selected")
	}
	return nil
}
