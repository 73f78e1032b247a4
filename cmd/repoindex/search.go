package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/searcher"
)

func newSearchCmd(c *cli) *cobra.Command {
	var (
		repository string
		limit      int
		minScore   float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed repository",
		Long: `Search an indexed repository with a natural language query.

Examples:
  repoindex search -r api "where are http retries configured"
  repoindex search -r api --limit 3 --min-score 0.5 "database migrations"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := searcher.SearchRequest{
				Repository: repository,
				Query:      strings.Join(args, " "),
				Limit:      limit,
			}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &minScore
			}

			result, err := a.Searcher.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, result)
			}
			if result.ModelMismatch {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: index was built with a different embedding model; re-index for meaningful scores")
			}
			if len(result.Hits) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, h := range result.Hits {
				label := h.Chunk.RelativePath
				if h.Chunk.Name != "" {
					label += " " + h.Chunk.Name
				}
				fmt.Fprintf(out, "%d. %s:%d-%d  (score %.3f)\n", i+1, label, h.Chunk.StartLine, h.Chunk.EndLine, h.Score)
				fmt.Fprintln(out, indent(preview(h.Chunk.Content, 6), "    "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&repository, "repo", "r", "", "repository name (required)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum similarity score (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

// preview returns at most n lines of s.
func preview(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
