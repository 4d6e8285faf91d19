package cmd

import (
	"context"
	"fmt"
	"strings"
)

// ResolveCmd resolves metadata for one title and author pair and prints
// the result without touching the store.
type ResolveCmd struct {
	Title  string `help:"Book title" required:""`
	Author string `help:"Author name"`
}

func (r *ResolveCmd) Run() error {
	meta := buildResolver().Resolve(context.Background(), r.Title, r.Author)
	if meta.Empty() {
		fmt.Println("No metadata found")
		return nil
	}

	fmt.Printf("source:      %s\n", meta.Source)
	if meta.PageCount != nil {
		fmt.Printf("pages:       %d\n", *meta.PageCount)
	}
	if meta.ISBN != nil {
		fmt.Printf("isbn:        %s\n", *meta.ISBN)
	}
	if len(meta.Categories) > 0 {
		fmt.Printf("categories:  %s\n", strings.Join(meta.Categories, ", "))
	}
	if meta.CoverURL != nil {
		fmt.Printf("cover:       %s\n", *meta.CoverURL)
	}
	if meta.Description != nil {
		fmt.Printf("description: %s\n", *meta.Description)
	}
	return nil
}
