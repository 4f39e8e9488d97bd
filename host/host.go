package host

import "context"

// Pattern: Strategy -- swap hosting platform without
// changing the proposal workflow.

// Host performs the remote operations of a proposal on
// a single configured repository.
type Host interface {
	// GetRef returns the tip commit SHA of branch.
	GetRef(ctx context.Context, branch string) (string, error)

	// CreateRef creates branch pointing at sha. It fails
	// with ErrRefExists when the branch already exists.
	CreateRef(ctx context.Context, branch string, sha string) error

	// DeleteRef removes branch.
	DeleteRef(ctx context.Context, branch string) error

	// GetFile returns the content of path on branch with
	// its revision token.
	GetFile(
		ctx context.Context,
		path string,
		branch string,
	) (*File, error)

	// UpdateFile writes a new version of a file. It fails
	// with ErrStaleRevision when the revision token no
	// longer matches the file on the target branch.
	UpdateFile(ctx context.Context, upd FileUpdate) error

	// CreatePullRequest opens a pull request from branch
	// "from" into branch "to".
	CreatePullRequest(
		ctx context.Context,
		from string,
		to string,
		title string,
		body string,
	) (*PullRequest, error)
}

// File is a snapshot of a hosted file at a given ref.
type File struct {
	// Content is the decoded file content.
	Content []byte
	// Revision is the token the host requires for a
	// conditional overwrite (blob SHA on GitHub, last
	// commit id on GitLab and Bitbucket).
	Revision string
}

// FileUpdate describes a conditional file write.
type FileUpdate struct {
	Path     string
	Branch   string
	Content  []byte
	Revision string
	Message  string
}

// PullRequest identifies a created pull request.
type PullRequest struct {
	Number int
	URL    string
}

// BodyOrTitle returns body, or title when body is
// empty. Some hosts reject an empty description.
func BodyOrTitle(title string, body string) string {
	if body == "" {
		return title
	}

	return body
}

// Operation names, used for logging and metric labels.
const (
	OpGetRef            = "get-ref"
	OpCreateRef         = "create-ref"
	OpDeleteRef         = "delete-ref"
	OpGetFile           = "get-file"
	OpUpdateFile        = "update-file"
	OpCreatePullRequest = "create-pull-request"
)
