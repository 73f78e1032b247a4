package indexer

import (
	"github.com/go-git/go-git/v5"
)

// sourceRevision returns the commit hash checked out at root, or "" when root
// is not inside a git work tree or HEAD cannot be resolved (for example an
// unborn branch). It never fails the run.
func sourceRevision(root string) string {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}

	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
