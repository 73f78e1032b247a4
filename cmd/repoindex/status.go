package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/indexer"
)

func newStatusCmd(c *cli) *cobra.Command {
	var (
		all    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Show the index status of a repository",
		Long: `Show the stored manifest summary of a repository. With --all (or no name),
list every indexed repository.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if all || len(args) == 0 {
				list, err := a.Indexer.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(out, "No repositories indexed.")
					return nil
				}
				printStatusTable(out, list)
				return nil
			}

			status, err := a.Indexer.Status(cmd.Context(), args[0])
			if errors.Is(err, indexer.ErrNotIndexed) {
				return fmt.Errorf("%s is not indexed; run 'repoindex index <path> --name %s'", args[0], args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, status)
			}
			printStatus(out, status)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every indexed repository")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printStatus(w io.Writer, s *indexer.Status) {
	fmt.Fprintf(w, "Repository:  %s\n", s.Repository)
	fmt.Fprintf(w, "Collection:  %s\n", s.Collection)
	fmt.Fprintf(w, "Root:        %s\n", s.RootPath)
	if s.Revision != "" {
		fmt.Fprintf(w, "Revision:    %s\n", s.Revision)
	}
	fmt.Fprintf(w, "Files:       %d\n", s.Files)
	fmt.Fprintf(w, "Chunks:      %d\n", s.Chunks)
	fmt.Fprintf(w, "Embeddings:  %s/%s (%d dims)\n", s.EmbeddingProvider, s.EmbeddingModel, s.Dimension)
	fmt.Fprintf(w, "Updated:     %s\n", s.UpdatedAt.Format(time.RFC3339))
	if s.Indexing {
		fmt.Fprintln(w, "Indexing:    in progress")
	}
	if s.ModelMismatch {
		fmt.Fprintln(w, "Warning:     configured embedding model differs; re-index with --force")
	}
}

func printStatusTable(w io.Writer, list []indexer.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tFILES\tCHUNKS\tMODEL\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Repository, s.Files, s.Chunks, s.EmbeddingModel, s.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
