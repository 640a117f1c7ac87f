package notes

import (
	"context"

	"mdnotes/internal/model"
)

// GitHub is the remote tree fetcher and writer. Every call is authenticated
// with a short-lived installation token except the installation lookups,
// which use the app JWT.
type GitHub interface {
	GetInstallation(ctx context.Context, installationID int64) (*model.RemoteInstallation, error)
	DeleteInstallation(ctx context.Context, installationID int64) error
	GetRepository(ctx context.Context, installationID, repositoryID int64) (*model.RemoteRepository, error)
	ListBranches(ctx context.Context, repo model.RepoRef) ([]string, error)

	// GetTree lists treeish (a branch, commit or tree sha) recursively.
	GetTree(ctx context.Context, repo model.RepoRef, treeish string) (*model.RemoteTree, error)
	// GetBlobs fetches decoded blob contents by sha. Blobs that fail are
	// absent from the result and reported in the joined error.
	GetBlobs(ctx context.Context, repo model.RepoRef, shas []string) (map[string]string, error)

	// GetContent returns nil, nil when path does not exist on branch.
	GetContent(ctx context.Context, repo model.RepoRef, path, branch string) (*model.RemoteContent, error)
	PutContent(ctx context.Context, repo model.RepoRef, path string, in model.PutContentInput) (*model.RemoteContent, error)

	// GetReference returns the commit sha a branch points at.
	GetReference(ctx context.Context, repo model.RepoRef, branch string) (string, error)
	// GetCommitTree returns the tree sha of a commit.
	GetCommitTree(ctx context.Context, repo model.RepoRef, commitSha string) (string, error)
	CreateTree(ctx context.Context, repo model.RepoRef, baseTree string, entries []model.TreeEntryInput) (string, error)
	CreateCommit(ctx context.Context, repo model.RepoRef, message, tree string, parents []string) (string, error)
	UpdateReference(ctx context.Context, repo model.RepoRef, branch, commitSha string) error
	CreatePullRequest(ctx context.Context, repo model.RepoRef, in model.PullRequestInput) (*model.PullRequest, error)
}
