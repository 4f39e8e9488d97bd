package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/usulan/digester"
	"github.com/byte4ever/usulan/host"
)

// Config holds the settings needed to create a GitHub
// host.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// APIURL overrides the REST API base URL. It takes
	// precedence over EnterpriseHost.
	APIURL string
	// HTTPClient is used for all requests when set.
	HTTPClient *http.Client
}

// Provider talks to one GitHub repository.
//
// Pattern: Strategy -- implements host.Host.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

var _ host.Host = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	client := gh.NewClient(cfg.HTTPClient).
		WithAuthToken(cfg.AccessToken)

	switch {
	case cfg.APIURL != "":
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}

		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: api url: %w", errCtx, err,
			)
		}

		client.BaseURL = u

	case cfg.EnterpriseHost != "":
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// GetRef returns the commit SHA at the tip of branch.
func (p *Provider) GetRef(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "getting github ref"

	ref, resp, err := p.client.Git.GetRef(
		ctx, p.repoOwner, p.repo, "heads/"+branch,
	)
	if err != nil {
		return "", classify(errCtx, resp, err)
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", host.NewError(
			errCtx, nil,
			fmt.Errorf("ref %s has no object sha", branch),
		)
	}

	return sha, nil
}

// CreateRef creates refs/heads/<branch> at sha. GitHub
// answers 422 when the reference already exists.
func (p *Provider) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "creating github ref"

	refName := "refs/heads/" + branch

	_, resp, err := p.client.Git.CreateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    &refName,
			Object: &gh.GitObject{SHA: &sha},
		},
	)
	if err == nil {
		return nil
	}

	if statusOf(resp) == http.StatusUnprocessableEntity &&
		strings.Contains(
			strings.ToLower(err.Error()),
			"already exists",
		) {
		return host.NewError(errCtx, host.ErrRefExists, err)
	}

	return classify(errCtx, resp, err)
}

// DeleteRef removes refs/heads/<branch>.
func (p *Provider) DeleteRef(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "deleting github ref"

	resp, err := p.client.Git.DeleteRef(
		ctx, p.repoOwner, p.repo, "heads/"+branch,
	)
	if err != nil {
		return classify(errCtx, resp, err)
	}

	return nil
}

// GetFile returns the content of path at branch and its
// blob SHA. Files above the contents API size limit are
// fetched through the blob API.
func (p *Provider) GetFile(
	ctx context.Context,
	path string,
	branch string,
) (*host.File, error) {
	const errCtx = "getting github file"

	fc, _, resp, err := p.client.Repositories.GetContents(
		ctx, p.repoOwner, p.repo, path,
		&gh.RepositoryContentGetOptions{Ref: branch},
	)
	if err != nil {
		return nil, classify(errCtx, resp, err)
	}

	if fc == nil {
		return nil, host.NewError(
			errCtx, nil,
			fmt.Errorf("%s is not a file", path),
		)
	}

	sha := fc.GetSHA()

	var content []byte

	if fc.GetEncoding() == "none" {
		content, resp, err = p.client.Git.GetBlobRaw(
			ctx, p.repoOwner, p.repo, sha,
		)
		if err != nil {
			return nil, classify(errCtx, resp, err)
		}
	} else {
		text, decErr := fc.GetContent()
		if decErr != nil {
			return nil, host.NewError(
				errCtx, nil,
				fmt.Errorf("decode content: %w", decErr),
			)
		}

		content = []byte(text)
	}

	if err := digester.VerifyBlob(content, sha); err != nil {
		return nil, host.NewError(errCtx, nil, err)
	}

	return &host.File{Content: content, Revision: sha}, nil
}

// UpdateFile commits new content for upd.Path on
// upd.Branch. GitHub answers 409 when upd.Revision is no
// longer the blob SHA of the file on that branch.
func (p *Provider) UpdateFile(
	ctx context.Context,
	upd host.FileUpdate,
) error {
	const errCtx = "updating github file"

	_, resp, err := p.client.Repositories.UpdateFile(
		ctx, p.repoOwner, p.repo, upd.Path,
		&gh.RepositoryContentFileOptions{
			Message: &upd.Message,
			Content: upd.Content,
			SHA:     &upd.Revision,
			Branch:  &upd.Branch,
		},
	)
	if err == nil {
		return nil
	}

	if statusOf(resp) == http.StatusConflict {
		return host.NewError(
			errCtx, host.ErrStaleRevision, err,
		)
	}

	return classify(errCtx, resp, err)
}

// CreatePullRequest creates a pull request from branch
// "from" into branch "to".
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*host.PullRequest, error) {
	const errCtx = "creating github pull request"

	pr := &gh.NewPullRequest{
		Title: &title,
		Head:  &from,
		Base:  &to,
		Body:  &body,
	}

	created, resp, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo, pr,
	)
	if err != nil {
		return nil, classify(errCtx, resp, err)
	}

	slog.Info(
		"created pull request",
		"url", created.GetHTMLURL(),
	)

	return &host.PullRequest{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}

// classify maps a go-github failure onto a host error
// kind and logs the response body for debugging.
func classify(
	op string,
	resp *gh.Response,
	err error,
) error {
	var (
		rle  *gh.RateLimitError
		arle *gh.AbuseRateLimitError
	)

	if errors.As(err, &rle) || errors.As(err, &arle) {
		return host.NewError(op, host.ErrRateLimited, err)
	}

	logResponseBody(resp)

	return host.NewError(
		op, host.KindForStatus(statusOf(resp)), err,
	)
}

func statusOf(resp *gh.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}

	return resp.StatusCode
}

func logResponseBody(resp *gh.Response) {
	if resp == nil || resp.Response == nil ||
		resp.Body == nil {
		return
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn(
			"cannot read response body",
			"error", err,
		)

		return
	}

	if len(rb) > 0 {
		slog.Warn("github response", "body", string(rb))
	}
}
