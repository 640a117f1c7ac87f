package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/go-resty/resty/v2"

	"mdnotes/internal/model"
)

const branchesPerPage = 100

// GetInstallation fetches installation metadata as the app.
func (c *Client) GetInstallation(ctx context.Context, installationID int64) (*model.RemoteInstallation, error) {
	req, err := c.appRequest(ctx)
	if err != nil {
		return nil, err
	}
	var out model.RemoteInstallation
	req.SetPathParam("id", strconv.FormatInt(installationID, 10)).SetResult(&out)
	if err := send(req, http.MethodGet, "/app/installations/{id}"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInstallation uninstalls the app from an account.
func (c *Client) DeleteInstallation(ctx context.Context, installationID int64) error {
	req, err := c.appRequest(ctx)
	if err != nil {
		return err
	}
	req.SetPathParam("id", strconv.FormatInt(installationID, 10))
	if err := send(req, http.MethodDelete, "/app/installations/{id}"); err != nil {
		return err
	}
	c.forget(installationID)
	return nil
}

// GetRepository fetches a repository by id. The installation token only
// grants access to the repositories of that installation, so a repository
// outside it is reported as not found.
func (c *Client) GetRepository(ctx context.Context, installationID, repositoryID int64) (*model.RemoteRepository, error) {
	req, err := c.installationRequest(ctx, installationID)
	if err != nil {
		return nil, err
	}
	var out model.RemoteRepository
	req.SetPathParam("id", strconv.FormatInt(repositoryID, 10)).SetResult(&out)
	if err := send(req, http.MethodGet, "/repositories/{id}"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) repoRequest(ctx context.Context, repo model.RepoRef) (*resty.Request, error) {
	req, err := c.installationRequest(ctx, repo.InstallationID)
	if err != nil {
		return nil, err
	}
	return req.SetPathParams(map[string]string{"owner": repo.Owner, "repo": repo.Name}), nil
}

// ListBranches returns every branch name, following pagination.
func (c *Client) ListBranches(ctx context.Context, repo model.RepoRef) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		req, err := c.repoRequest(ctx, repo)
		if err != nil {
			return nil, err
		}
		var out []struct {
			Name string `json:"name"`
		}
		req.SetQueryParams(map[string]string{
			"per_page": strconv.Itoa(branchesPerPage),
			"page":     strconv.Itoa(page),
		}).SetResult(&out)
		if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/branches"); err != nil {
			return nil, err
		}
		for _, b := range out {
			names = append(names, b.Name)
		}
		if len(out) < branchesPerPage {
			return names, nil
		}
	}
}

// GetTree lists treeish recursively.
func (c *Client) GetTree(ctx context.Context, repo model.RepoRef, treeish string) (*model.RemoteTree, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return nil, err
	}
	var out model.RemoteTree
	req.SetRawPathParam("treeish", escapePath(treeish)).
		SetQueryParam("recursive", "1").
		SetResult(&out)
	if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/git/trees/{treeish}"); err != nil {
		return nil, err
	}
	if out.Truncated {
		c.logger.Warn("remote tree listing truncated", "repository", repo.FullName(), "treeish", treeish, "entries", len(out.Entries))
	}
	return &out, nil
}

// GetBlobs downloads blobs concurrently. The result holds every blob that
// could be fetched; failures are joined into the returned error.
func (c *Client) GetBlobs(ctx context.Context, repo model.RepoRef, shas []string) (map[string]string, error) {
	unique := make([]string, 0, len(shas))
	seen := make(map[string]bool, len(shas))
	for _, sha := range shas {
		if !seen[sha] {
			seen[sha] = true
			unique = append(unique, sha)
		}
	}
	out := make(map[string]string, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	// One token for the whole batch.
	if _, err := c.installationToken(ctx, repo.InstallationID); err != nil {
		return out, err
	}

	var (
		mu   sync.Mutex
		errs []error
		done = make(map[string]bool, len(unique))
	)
	pool := pond.NewPool(c.concurrency, pond.WithContext(ctx))
	for _, sha := range unique {
		pool.Submit(func() {
			content, err := c.getBlob(ctx, repo, sha)
			mu.Lock()
			defer mu.Unlock()
			done[sha] = true
			if err != nil {
				errs = append(errs, fmt.Errorf("blob %s: %w", sha, err))
				return
			}
			out[sha] = content
		})
	}
	pool.StopAndWait()

	for _, sha := range unique {
		if !done[sha] {
			errs = append(errs, fmt.Errorf("blob %s: %w", sha, context.Cause(ctx)))
		}
	}
	if len(errs) > 0 {
		c.logger.Warn("some blobs could not be fetched", "repository", repo.FullName(), "failed", len(errs), "fetched", len(out))
	}
	return out, errors.Join(errs...)
}

func (c *Client) getBlob(ctx context.Context, repo model.RepoRef, sha string) (string, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return "", err
	}
	var out struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	req.SetPathParam("sha", sha).SetResult(&out)
	if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/git/blobs/{sha}"); err != nil {
		return "", err
	}
	return decodeContent(out.Content, out.Encoding)
}

func decodeContent(content, encoding string) (string, error) {
	switch encoding {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decoding content: %w", err)
		}
		return string(data), nil
	case "utf-8", "":
		return content, nil
	default:
		return "", fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// GetContent returns nil, nil when path does not exist on branch.
func (c *Client) GetContent(ctx context.Context, repo model.RepoRef, path, branch string) (*model.RemoteContent, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return nil, err
	}
	var out model.RemoteContent
	req.SetRawPathParam("path", escapePath(path)).
		SetQueryParam("ref", branch).
		SetResult(&out)
	if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/contents/{path}"); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// PutContent creates or updates a single file with its own commit.
func (c *Client) PutContent(ctx context.Context, repo model.RepoRef, path string, in model.PutContentInput) (*model.RemoteContent, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return nil, err
	}
	var out struct {
		Content model.RemoteContent `json:"content"`
	}
	req.SetRawPathParam("path", escapePath(path)).SetBody(in).SetResult(&out)
	if err := send(req, http.MethodPut, "/repos/{owner}/{repo}/contents/{path}"); err != nil {
		return nil, err
	}
	return &out.Content, nil
}

func (c *Client) GetReference(ctx context.Context, repo model.RepoRef, branch string) (string, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return "", err
	}
	var out struct {
		Object struct {
			Sha string `json:"sha"`
		} `json:"object"`
	}
	req.SetRawPathParam("branch", escapePath(branch)).SetResult(&out)
	if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/git/ref/heads/{branch}"); err != nil {
		return "", err
	}
	return out.Object.Sha, nil
}

func (c *Client) GetCommitTree(ctx context.Context, repo model.RepoRef, commitSha string) (string, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return "", err
	}
	var out struct {
		Tree struct {
			Sha string `json:"sha"`
		} `json:"tree"`
	}
	req.SetPathParam("sha", commitSha).SetResult(&out)
	if err := send(req, http.MethodGet, "/repos/{owner}/{repo}/git/commits/{sha}"); err != nil {
		return "", err
	}
	return out.Tree.Sha, nil
}

// CreateTree creates a tree on top of baseTree and returns its sha.
func (c *Client) CreateTree(ctx context.Context, repo model.RepoRef, baseTree string, entries []model.TreeEntryInput) (string, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return "", err
	}
	var out struct {
		Sha string `json:"sha"`
	}
	body := struct {
		BaseTree string                 `json:"base_tree,omitempty"`
		Tree     []model.TreeEntryInput `json:"tree"`
	}{baseTree, entries}
	req.SetBody(body).SetResult(&out)
	if err := send(req, http.MethodPost, "/repos/{owner}/{repo}/git/trees"); err != nil {
		return "", err
	}
	return out.Sha, nil
}

func (c *Client) CreateCommit(ctx context.Context, repo model.RepoRef, message, tree string, parents []string) (string, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return "", err
	}
	var out struct {
		Sha string `json:"sha"`
	}
	body := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{message, tree, parents}
	req.SetBody(body).SetResult(&out)
	if err := send(req, http.MethodPost, "/repos/{owner}/{repo}/git/commits"); err != nil {
		return "", err
	}
	return out.Sha, nil
}

// UpdateReference fast-forwards branch to commitSha. A non fast-forward
// update is rejected by the API.
func (c *Client) UpdateReference(ctx context.Context, repo model.RepoRef, branch, commitSha string) error {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return err
	}
	body := struct {
		Sha   string `json:"sha"`
		Force bool   `json:"force"`
	}{commitSha, false}
	req.SetRawPathParam("branch", escapePath(branch)).SetBody(body)
	return send(req, http.MethodPatch, "/repos/{owner}/{repo}/git/refs/heads/{branch}")
}

func (c *Client) CreatePullRequest(ctx context.Context, repo model.RepoRef, in model.PullRequestInput) (*model.PullRequest, error) {
	req, err := c.repoRequest(ctx, repo)
	if err != nil {
		return nil, err
	}
	var out model.PullRequest
	req.SetBody(in).SetResult(&out)
	if err := send(req, http.MethodPost, "/repos/{owner}/{repo}/pulls"); err != nil {
		return nil, err
	}
	return &out, nil
}

// escapePath escapes each segment of a slash-separated path, keeping the
// separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
