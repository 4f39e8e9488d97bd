package bitbucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/usulan/host"
)

// Config holds the settings needed to create a
// Bitbucket Server host.
type Config struct {
	// BaseURL is the Bitbucket Server root URL
	// (e.g. "https://bb.example.com").
	BaseURL string
	// Project is the project key (e.g. "PROJ").
	Project string
	// Repo is the repository slug.
	Repo string
	// User is the Bitbucket API username.
	User string
	// Password is the Bitbucket API password (or
	// personal access token).
	Password string
	// HTTPClient is used for all requests when set.
	HTTPClient *http.Client
}

// Provider talks to one Bitbucket Server repository.
//
// Pattern: Strategy -- implements host.Host.
type Provider struct {
	client   *http.Client
	apiURL   string
	utilsURL string
	project  string
	repo     string
	user     string
	password string
}

var _ host.Host = (*Provider)(nil)

type project struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Slug    string  `json:"slug,omitempty"`
	Project project `json:"project"`
}

type pullrequestEndpoint struct {
	ID         string     `json:"id,omitempty"`
	Repository repository `json:"repository,omitempty"`
}

type pullrequest struct {
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state,omitempty"`
	Open        bool                 `json:"open"`
	Closed      bool                 `json:"closed"`
	FromRef     *pullrequestEndpoint `json:"fromRef,omitempty"`
	ToRef       *pullrequestEndpoint `json:"toRef,omitempty"`
	Locked      bool                 `json:"locked"`
	Reviewers   []account            `json:"reviewers,omitempty"`
}

type account struct {
	User user `json:"user"`
}

type user struct {
	Name string `json:"name,omitempty"`
}

type createdPullrequest struct {
	ID    int `json:"id"`
	Links struct {
		Self []struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

type branchPage struct {
	Values []struct {
		ID           string `json:"id"`
		DisplayID    string `json:"displayId"`
		LatestCommit string `json:"latestCommit"`
	} `json:"values"`
}

type commitPage struct {
	Values []struct {
		ID string `json:"id"`
	} `json:"values"`
}

type createBranch struct {
	Name       string `json:"name"`
	StartPoint string `json:"startPoint"`
}

type deleteBranch struct {
	Name   string `json:"name"`
	DryRun bool   `json:"dryRun"`
}

type errorPage struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// statusError is a non-2xx answer from Bitbucket.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf(
		"unexpected status %d: %s", e.status, e.message,
	)
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf(
			"%s: base url must be set", errCtx,
		)
	}

	if cfg.Project == "" {
		return nil, fmt.Errorf(
			"%s: project must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.User == "" {
		return nil, fmt.Errorf(
			"%s: user must be set", errCtx,
		)
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf(
			"%s: password must be set", errCtx,
		)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	base := strings.TrimSuffix(cfg.BaseURL, "/")
	repoPath := "/projects/" + url.PathEscape(cfg.Project) +
		"/repos/" + url.PathEscape(cfg.Repo)

	return &Provider{
		client:   client,
		apiURL:   base + "/rest/api/1.0" + repoPath,
		utilsURL: base + "/rest/branch-utils/1.0" + repoPath,
		project:  cfg.Project,
		repo:     cfg.Repo,
		user:     cfg.User,
		password: cfg.Password,
	}, nil
}

// GetRef returns the latest commit of branch.
func (p *Provider) GetRef(
	ctx context.Context,
	branch string,
) (string, error) {
	const errCtx = "getting bitbucket branch"

	q := url.Values{}
	q.Set("filterText", branch)
	q.Set("limit", "100")

	var page branchPage

	if err := p.doJSON(
		ctx, http.MethodGet,
		p.apiURL+"/branches?"+q.Encode(),
		nil, &page,
	); err != nil {
		return "", classify(errCtx, err)
	}

	for _, br := range page.Values {
		if br.DisplayID == branch ||
			br.ID == "refs/heads/"+branch {
			return br.LatestCommit, nil
		}
	}

	return "", host.NewError(
		errCtx, host.ErrNotFound,
		fmt.Errorf("branch %s not found", branch),
	)
}

// CreateRef creates branch starting at sha.
func (p *Provider) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "creating bitbucket branch"

	err := p.doJSON(
		ctx, http.MethodPost, p.apiURL+"/branches",
		createBranch{Name: branch, StartPoint: sha},
		nil,
	)
	if err == nil {
		return nil
	}

	var se *statusError
	if errors.As(err, &se) &&
		(se.status == http.StatusConflict ||
			strings.Contains(
				strings.ToLower(se.message),
				"already exists",
			)) {
		return host.NewError(errCtx, host.ErrRefExists, err)
	}

	return classify(errCtx, err)
}

// DeleteRef removes branch through the branch-utils
// plugin API.
func (p *Provider) DeleteRef(
	ctx context.Context,
	branch string,
) error {
	const errCtx = "deleting bitbucket branch"

	if err := p.doJSON(
		ctx, http.MethodDelete, p.utilsURL+"/branches",
		deleteBranch{Name: "refs/heads/" + branch},
		nil,
	); err != nil {
		return classify(errCtx, err)
	}

	return nil
}

// GetFile returns the raw content of path at branch and
// the latest commit that touched it. The commit is resolved
// first and the content is read at that commit, so the pair
// stays consistent when the branch moves in between.
func (p *Provider) GetFile(
	ctx context.Context,
	path string,
	branch string,
) (*host.File, error) {
	const errCtx = "getting bitbucket file"

	q := url.Values{}
	q.Set("path", path)
	q.Set("until", "refs/heads/"+branch)
	q.Set("limit", "1")

	var page commitPage

	if err := p.doJSON(
		ctx, http.MethodGet,
		p.apiURL+"/commits?"+q.Encode(),
		nil, &page,
	); err != nil {
		return nil, classify(errCtx, err)
	}

	if len(page.Values) == 0 {
		return nil, host.NewError(
			errCtx, host.ErrNotFound,
			fmt.Errorf("no commit touches %s", path),
		)
	}

	revision := page.Values[0].ID

	q = url.Values{}
	q.Set("at", revision)

	content, err := p.do(
		ctx, http.MethodGet,
		p.apiURL+"/raw/"+escapePath(path)+"?"+q.Encode(),
		"", nil,
	)
	if err != nil {
		return nil, classify(errCtx, err)
	}

	return &host.File{
		Content:  content,
		Revision: revision,
	}, nil
}

// UpdateFile commits new content for upd.Path on
// upd.Branch. Bitbucket answers 409 when sourceCommitId
// is not the latest commit touching the file.
func (p *Provider) UpdateFile(
	ctx context.Context,
	upd host.FileUpdate,
) error {
	const errCtx = "updating bitbucket file"

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"branch", upd.Branch},
		{"message", upd.Message},
		{"sourceCommitId", upd.Revision},
		{"content", string(upd.Content)},
	}

	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf(
				"%s: write %s: %w", errCtx, f.name, err,
			)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf(
			"%s: close form: %w", errCtx, err,
		)
	}

	_, err := p.do(
		ctx, http.MethodPut,
		p.apiURL+"/browse/"+escapePath(upd.Path),
		mw.FormDataContentType(), &buf,
	)
	if err == nil {
		return nil
	}

	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusConflict {
		return host.NewError(
			errCtx, host.ErrStaleRevision, err,
		)
	}

	return classify(errCtx, err)
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
	const errCtx = "creating bitbucket pull request"

	repo := repository{
		Slug:    p.repo,
		Project: project{Key: p.project},
	}

	pr := pullrequest{
		Title:       title,
		Description: body,
		State:       "OPEN",
		Open:        true,
		Closed:      false,
		FromRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + from,
			Repository: repo,
		},
		ToRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + to,
			Repository: repo,
		},
		Locked:    false,
		Reviewers: []account{},
	}

	var created createdPullrequest

	if err := p.doJSON(
		ctx, http.MethodPost, p.apiURL+"/pull-requests",
		&pr, &created,
	); err != nil {
		return nil, classify(errCtx, err)
	}

	out := &host.PullRequest{Number: created.ID}
	if len(created.Links.Self) > 0 {
		out.URL = created.Links.Self[0].Href
	}

	slog.Info("created pull request", "url", out.URL)

	return out, nil
}

// doJSON sends in as a JSON body (when not nil) and
// decodes a 2xx answer into out (when not nil).
func (p *Provider) doJSON(
	ctx context.Context,
	method string,
	target string,
	in any,
	out any,
) error {
	const errCtx = "bitbucket json call"

	var (
		body        io.Reader
		contentType string
	)

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf(
				"%s: marshal request: %w", errCtx, err,
			)
		}

		body = bytes.NewReader(payload)
		contentType = "application/json; charset=utf-8"
	}

	rb, err := p.do(ctx, method, target, contentType, body)
	if err != nil {
		return err
	}

	if out == nil || len(rb) == 0 {
		return nil
	}

	if err := json.Unmarshal(rb, out); err != nil {
		return fmt.Errorf(
			"%s: decode response: %w", errCtx, err,
		)
	}

	return nil
}

// do sends one authenticated request and returns the
// response body. Non-2xx answers become *statusError.
func (p *Provider) do(
	ctx context.Context,
	method string,
	target string,
	contentType string,
	body io.Reader,
) ([]byte, error) {
	const errCtx = "bitbucket call"

	req, err := http.NewRequestWithContext(
		ctx, method, target, body,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: build request: %w", errCtx, err,
		)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Atlassian-Token", "no-check")
	req.SetBasicAuth(p.user, p.password)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: send request: %w", errCtx, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: read response: %w", errCtx, err,
		)
	}

	if resp.StatusCode >= http.StatusOK &&
		resp.StatusCode < http.StatusMultipleChoices {
		return rb, nil
	}

	slog.Warn(
		"bitbucket response",
		"status", resp.Status,
		"body", string(rb),
	)

	return nil, &statusError{
		status:  resp.StatusCode,
		message: errorMessage(rb),
	}
}

// classify maps a failed call onto a host error kind.
// Failures without an HTTP answer are transport errors.
func classify(op string, err error) error {
	var (
		se *statusError
		ue *url.Error
	)

	switch {
	case errors.As(err, &se):
		return host.NewError(
			op, host.KindForStatus(se.status), err,
		)
	case errors.As(err, &ue):
		return host.NewError(op, host.ErrTransport, err)
	default:
		return host.NewError(op, nil, err)
	}
}

// errorMessage extracts the first error message of a
// Bitbucket error page, or returns the raw body.
func errorMessage(rb []byte) string {
	var page errorPage
	if err := json.Unmarshal(rb, &page); err == nil &&
		len(page.Errors) > 0 {
		return page.Errors[0].Message
	}

	return strings.TrimSpace(string(rb))
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}
