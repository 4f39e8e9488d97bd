package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/usulan/host"
)

// Config holds the settings needed to create a GitLab
// host.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
	// HTTPClient is used for all requests when set.
	HTTPClient *http.Client
}

// Provider talks to one GitLab project.
//
// Pattern: Strategy -- implements host.Host.
type Provider struct {
	client *gl.Client
	repo   string
}

var _ host.Host = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider.
// Client-side retries are disabled: a failed call is
// reported to the caller as is.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}

	opts := []gl.ClientOptionFunc{
		gl.WithBaseURL(baseURL),
		gl.WithoutRetries(),
	}

	if cfg.HTTPClient != nil {
		opts = append(opts, gl.WithHTTPClient(cfg.HTTPClient))
	}

	client, err := gl.NewClient(cfg.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client: client,
		repo:   cfg.Repo,
	}, nil
}

// GetRef returns the commit id at the tip of branch.
func (p *Provider) GetRef(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "getting gitlab branch"

	br, resp, err := p.client.Branches.GetBranch(
		p.repo, branch, gl.WithContext(ctx),
	)
	if err != nil {
		return "", classify(errCtx, resp, err)
	}

	if br.Commit == nil || br.Commit.ID == "" {
		return "", host.NewError(
			errCtx, nil,
			fmt.Errorf("branch %s has no commit", branch),
		)
	}

	return br.Commit.ID, nil
}

// CreateRef creates branch from sha. GitLab answers 400
// "Branch already exists" on a duplicate.
func (p *Provider) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "creating gitlab branch"

	_, resp, err := p.client.Branches.CreateBranch(
		p.repo,
		&gl.CreateBranchOptions{
			Branch: &branch,
			Ref:    &sha,
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		return nil
	}

	if statusOf(resp) == http.StatusBadRequest &&
		containsFold(err, "already exists") {
		return host.NewError(errCtx, host.ErrRefExists, err)
	}

	return classify(errCtx, resp, err)
}

// DeleteRef removes branch.
func (p *Provider) DeleteRef(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "deleting gitlab branch"

	resp, err := p.client.Branches.DeleteBranch(
		p.repo, branch, gl.WithContext(ctx),
	)
	if err != nil {
		return classify(errCtx, resp, err)
	}

	return nil
}

// GetFile returns the content of path at branch and the
// id of the last commit that modified it.
func (p *Provider) GetFile(
	ctx context.Context,
	path string,
	branch string,
) (*host.File, error) {
	const errCtx = "getting gitlab file"

	fi, resp, err := p.client.RepositoryFiles.GetFile(
		p.repo, path,
		&gl.GetFileOptions{Ref: &branch},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, classify(errCtx, resp, err)
	}

	content := []byte(fi.Content)

	if fi.Encoding == "base64" {
		content, err = base64.StdEncoding.DecodeString(
			fi.Content,
		)
		if err != nil {
			return nil, host.NewError(
				errCtx, nil,
				fmt.Errorf("decode content: %w", err),
			)
		}
	}

	return &host.File{
		Content:  content,
		Revision: fi.LastCommitID,
	}, nil
}

// UpdateFile commits new content for upd.Path on
// upd.Branch, conditional on upd.Revision still being
// the last commit that touched the file.
func (p *Provider) UpdateFile(
	ctx context.Context,
	upd host.FileUpdate,
) error {
	const errCtx = "updating gitlab file"

	content := string(upd.Content)
	encoding := "text"

	_, resp, err := p.client.RepositoryFiles.UpdateFile(
		p.repo, upd.Path,
		&gl.UpdateFileOptions{
			Branch:        &upd.Branch,
			Encoding:      &encoding,
			Content:       &content,
			CommitMessage: &upd.Message,
			LastCommitID:  &upd.Revision,
		},
		gl.WithContext(ctx),
	)
	if err == nil {
		return nil
	}

	// GitLab reports a moved last_commit_id as a 400
	// with a "has changed" message.
	if statusOf(resp) == http.StatusBadRequest &&
		containsFold(err, "has changed") {
		return host.NewError(
			errCtx, host.ErrStaleRevision, err,
		)
	}

	return classify(errCtx, resp, err)
}

// CreatePullRequest creates a merge request from branch
// "from" into branch "to".
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*host.PullRequest, error) {
	const errCtx = "creating gitlab merge request"

	description := host.BodyOrTitle(title, body)

	opts := gl.CreateMergeRequestOptions{
		Title:        &title,
		Description:  &description,
		SourceBranch: &from,
		TargetBranch: &to,
	}

	created, resp, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo, &opts, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, classify(errCtx, resp, err)
	}

	slog.Info(
		"created merge request",
		"url", created.WebURL,
	)

	return &host.PullRequest{
		Number: int(created.IID),
		URL:    created.WebURL,
	}, nil
}

// classify maps a client-go failure onto a host error
// kind and logs the response body for debugging.
func classify(
	op string,
	resp *gl.Response,
	err error,
) error {
	var er *gl.ErrorResponse
	if errors.As(err, &er) && len(er.Body) > 0 {
		slog.Warn("gitlab response", "body", string(er.Body))
	}

	return host.NewError(
		op, host.KindForStatus(statusOf(resp)), err,
	)
}

func statusOf(resp *gl.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}

	return resp.StatusCode
}

func containsFold(err error, sub string) bool {
	return strings.Contains(
		strings.ToLower(err.Error()), sub,
	)
}
