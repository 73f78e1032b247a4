package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/pkg/types"
)

type indexOptions struct {
	name    string
	force   bool
	include []string
	exclude []string
	quiet   bool
	json    bool
}

func newIndexCmd(c *cli) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index or incrementally re-index a repository",
		Long: `Index files in the specified directory for later search. Only files whose
content changed since the last run are re-embedded; deleted files are removed
from the index.

Examples:
  repoindex index .                            # Index current directory
  repoindex index ~/src/api --name api         # Index under an explicit name
  repoindex index . --exclude 'vendor/**'      # Skip a subtree
  repoindex index . --force                    # Rebuild from scratch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd, c, path, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "repository name (default is the directory name)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "drop the existing index and re-embed every file")
	cmd.Flags().StringSliceVar(&opts.include, "include", nil, "glob patterns of files to index")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns of files to skip")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not render progress")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	return cmd
}

func runIndex(cmd *cobra.Command, c *cli, path string, opts *indexOptions) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	req := indexer.IndexRequest{
		Path:            path,
		Name:            opts.name,
		Force:           opts.force,
		IncludePatterns: opts.include,
		ExcludePatterns: opts.exclude,
	}
	var bar *progressReporter
	if !opts.quiet && !opts.json {
		bar = newProgressReporter(cmd.ErrOrStderr())
		req.OnProgress = bar.update
	}

	result, err := a.Indexer.Index(cmd.Context(), req)
	bar.finish()

	out := cmd.OutOrStdout()
	if opts.json && result != nil {
		if jerr := writeJSON(out, result); jerr != nil {
			return jerr
		}
	} else if result != nil && (result.Success || result.FilesAdded+result.FilesUpdated > 0) {
		printIndexResult(out, result)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func printIndexResult(w io.Writer, r *types.IndexingResult) {
	fmt.Fprintf(w, "Indexed %s (collection %s):\n", r.Repository, r.Collection)
	fmt.Fprintf(w, "  Files added:    %d\n", r.FilesAdded)
	fmt.Fprintf(w, "  Files updated:  %d\n", r.FilesUpdated)
	fmt.Fprintf(w, "  Files removed:  %d\n", r.FilesRemoved)
	fmt.Fprintf(w, "  Files skipped:  %d (unchanged)\n", r.FilesSkipped)
	fmt.Fprintf(w, "  Total chunks:   %d\n", r.TotalChunks)
	fmt.Fprintf(w, "  Duration:       %s\n", r.Duration.Round(time.Millisecond))

	if len(r.FailedFiles) > 0 {
		fmt.Fprintf(w, "\nFailed files:\n")
		for _, f := range r.FailedFiles {
			fmt.Fprintf(w, "  - %s: %s\n", f.Path, f.Error)
		}
	}
}

// progressReporter renders one bar per counted phase. Callbacks arrive from
// worker goroutines.
type progressReporter struct {
	mu    sync.Mutex
	w     io.Writer
	phase string
	bar   *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &progressReporter{w: w}
}

func (p *progressReporter) update(pr indexer.Progress) {
	if pr.Phase != indexer.PhaseChunk && pr.Phase != indexer.PhaseEmbed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if pr.Phase != p.phase {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.phase = pr.Phase
		p.bar = nil
		if pr.Total == 0 {
			return
		}
		desc := "Chunking"
		if pr.Phase == indexer.PhaseEmbed {
			desc = "Embedding"
		}
		p.bar = progressbar.NewOptions(pr.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(p.w)
			}),
		)
	}
	if p.bar != nil {
		_ = p.bar.Set(pr.Processed)
	}
}

func (p *progressReporter) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
