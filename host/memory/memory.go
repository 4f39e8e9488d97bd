package memory

import (
	"context"
	"crypto/sha1" //nolint:gosec // fake commit ids
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/byte4ever/usulan/digester"
	"github.com/byte4ever/usulan/host"
)

// PullRequest is a pull request recorded by Host.
type PullRequest struct {
	host.PullRequest

	From  string
	To    string
	Title string
	Body  string
}

type branch struct {
	commit string
	files  map[string][]byte
}

// Host is an in-memory repository.
type Host struct {
	// Hook, when set, runs before every operation with
	// the operation name. It runs without the lock held
	// so it may call PutFile to simulate a concurrent
	// writer.
	Hook func(op string)

	mu       sync.Mutex
	baseURL  string
	branches map[string]*branch
	prs      []PullRequest
	calls    []string
	fail     map[string]error
	seq      int
}

var _ host.Host = (*Host)(nil)

// New returns a Host with a single branch named base
// holding files. baseURL prefixes pull request URLs.
func New(
	baseURL string,
	base string,
	files map[string][]byte,
) *Host {
	ho := &Host{
		baseURL:  baseURL,
		branches: make(map[string]*branch),
		fail:     make(map[string]error),
	}

	ho.branches[base] = &branch{
		commit: ho.nextCommit(),
		files:  maps.Clone(files),
	}

	if ho.branches[base].files == nil {
		ho.branches[base].files = make(map[string][]byte)
	}

	return ho
}

// Fail makes every later call of op return err. A nil
// err clears the failure.
func (ho *Host) Fail(op string, err error) {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	if err == nil {
		delete(ho.fail, op)

		return
	}

	ho.fail[op] = err
}

// Calls returns the operations performed so far, in
// order.
func (ho *Host) Calls() []string {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	return slices.Clone(ho.calls)
}

// Branches returns the sorted branch names.
func (ho *Host) Branches() []string {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	return slices.Sorted(maps.Keys(ho.branches))
}

// File returns the content of path on branchName.
func (ho *Host) File(
	branchName string,
	path string,
) ([]byte, bool) {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	br, ok := ho.branches[branchName]
	if !ok {
		return nil, false
	}

	content, ok := br.files[path]

	return slices.Clone(content), ok
}

// PutFile writes path on branchName without any
// precondition, as another client would.
func (ho *Host) PutFile(
	branchName string,
	path string,
	content []byte,
) {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	br, ok := ho.branches[branchName]
	if !ok {
		return
	}

	br.files[path] = slices.Clone(content)
	br.commit = ho.nextCommit()
}

// PullRequests returns the pull requests created so far.
func (ho *Host) PullRequests() []PullRequest {
	ho.mu.Lock()
	defer ho.mu.Unlock()

	return slices.Clone(ho.prs)
}

// GetRef implements host.Host.
func (ho *Host) GetRef(
	ctx context.Context,
	branchName string,
) (string, error) {
	if err := ho.enter(ctx, host.OpGetRef); err != nil {
		return "", err
	}
	defer ho.mu.Unlock()

	br, ok := ho.branches[branchName]
	if !ok {
		return "", notFound(host.OpGetRef, branchName)
	}

	return br.commit, nil
}

// CreateRef implements host.Host. The new branch shares
// the file set of the branch whose tip is sha.
func (ho *Host) CreateRef(
	ctx context.Context,
	branchName string,
	sha string,
) error {
	if err := ho.enter(ctx, host.OpCreateRef); err != nil {
		return err
	}
	defer ho.mu.Unlock()

	if _, ok := ho.branches[branchName]; ok {
		return host.NewError(
			host.OpCreateRef, host.ErrRefExists,
			fmt.Errorf("reference refs/heads/%s already exists", branchName),
		)
	}

	for _, br := range ho.branches {
		if br.commit == sha {
			ho.branches[branchName] = &branch{
				commit: sha,
				files:  maps.Clone(br.files),
			}

			return nil
		}
	}

	return notFound(host.OpCreateRef, "commit "+sha)
}

// DeleteRef implements host.Host.
func (ho *Host) DeleteRef(
	ctx context.Context,
	branchName string,
) error {
	if err := ho.enter(ctx, host.OpDeleteRef); err != nil {
		return err
	}
	defer ho.mu.Unlock()

	if _, ok := ho.branches[branchName]; !ok {
		return notFound(host.OpDeleteRef, branchName)
	}

	delete(ho.branches, branchName)

	return nil
}

// GetFile implements host.Host. The revision token is
// the git blob SHA of the content.
func (ho *Host) GetFile(
	ctx context.Context,
	path string,
	branchName string,
) (*host.File, error) {
	if err := ho.enter(ctx, host.OpGetFile); err != nil {
		return nil, err
	}
	defer ho.mu.Unlock()

	br, ok := ho.branches[branchName]
	if !ok {
		return nil, notFound(host.OpGetFile, branchName)
	}

	content, ok := br.files[path]
	if !ok {
		return nil, notFound(host.OpGetFile, path)
	}

	return &host.File{
		Content:  slices.Clone(content),
		Revision: digester.BlobSHA(content),
	}, nil
}

// UpdateFile implements host.Host.
func (ho *Host) UpdateFile(
	ctx context.Context,
	upd host.FileUpdate,
) error {
	if err := ho.enter(ctx, host.OpUpdateFile); err != nil {
		return err
	}
	defer ho.mu.Unlock()

	br, ok := ho.branches[upd.Branch]
	if !ok {
		return notFound(host.OpUpdateFile, upd.Branch)
	}

	current := digester.BlobSHA(br.files[upd.Path])
	if upd.Revision != current {
		return host.NewError(
			host.OpUpdateFile, host.ErrStaleRevision,
			fmt.Errorf(
				"%s does not match %s", upd.Path, upd.Revision,
			),
		)
	}

	br.files[upd.Path] = slices.Clone(upd.Content)
	br.commit = ho.nextCommit()

	return nil
}

// CreatePullRequest implements host.Host.
func (ho *Host) CreatePullRequest(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*host.PullRequest, error) {
	if err := ho.enter(ctx, host.OpCreatePullRequest); err != nil {
		return nil, err
	}
	defer ho.mu.Unlock()

	for _, name := range []string{from, to} {
		if _, ok := ho.branches[name]; !ok {
			return nil, notFound(
				host.OpCreatePullRequest, name,
			)
		}
	}

	number := len(ho.prs) + 1

	pr := PullRequest{
		PullRequest: host.PullRequest{
			Number: number,
			URL:    ho.baseURL + "/pull/" + strconv.Itoa(number),
		},
		From:  from,
		To:    to,
		Title: title,
		Body:  body,
	}

	ho.prs = append(ho.prs, pr)

	out := pr.PullRequest

	return &out, nil
}

// enter runs the hook, records the call, and takes the
// lock. On a nil return the caller must unlock.
func (ho *Host) enter(ctx context.Context, op string) error {
	if ho.Hook != nil {
		ho.Hook(op)
	}

	ho.mu.Lock()

	ho.calls = append(ho.calls, op)

	if err := ctx.Err(); err != nil {
		ho.mu.Unlock()

		return host.NewError(op, host.ErrTransport, err)
	}

	if err, ok := ho.fail[op]; ok {
		ho.mu.Unlock()

		return err
	}

	return nil
}

// nextCommit returns a fresh fake commit id. Callers
// hold the lock.
func (ho *Host) nextCommit() string {
	ho.seq++

	sum := sha1.Sum( //nolint:gosec // fake commit ids
		[]byte("commit " + strconv.Itoa(ho.seq)),
	)

	return hex.EncodeToString(sum[:])
}

func notFound(op string, what string) error {
	return host.NewError(
		op, host.ErrNotFound,
		fmt.Errorf("%s not found", what),
	)
}
