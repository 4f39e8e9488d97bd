package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/byte4ever/usulan/commitmsg"
	"github.com/byte4ever/usulan/dataset"
	"github.com/byte4ever/usulan/host"
)

// Defaults applied by NewProposer to zero Config fields.
const (
	DefaultBaseBranch           = "main"
	DefaultDatasetPath          = "database.json"
	DefaultBranchPrefix         = "usulan/"
	DefaultWriteAttempts        = 1
	DefaultRetryInitialInterval = 200 * time.Millisecond
	DefaultRetryMaxInterval     = 2 * time.Second
	DefaultCleanupTimeout       = 10 * time.Second
)

// Outcome reported to observers for a successful
// submission. Failures report their Kind.
const OutcomeSuccess = "success"

// ErrNilHost is returned by NewProposer without a host.
var ErrNilHost = errors.New("nil host")

// Config holds the settings of a Proposer.
type Config struct {
	// BaseBranch is the integration branch proposals
	// target.
	BaseBranch string

	// DatasetPath is the repository path of the JSON
	// dataset.
	DatasetPath string

	// Branch shapes proposal branch names. An empty
	// prefix becomes DefaultBranchPrefix.
	Branch BranchOptions

	// Templates render commit and pull request texts.
	Templates commitmsg.Templates

	// WriteAttempts bounds the conditional write. Only
	// stale revisions are retried.
	WriteAttempts int

	// RetryInitialInterval and RetryMaxInterval bound
	// the exponential backoff between write attempts.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// KeepOrphanBranches leaves the proposal branch in
	// place when a later step fails.
	KeepOrphanBranches bool

	// CleanupTimeout bounds the orphan branch deletion.
	CleanupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseBranch == "" {
		c.BaseBranch = DefaultBaseBranch
	}

	if c.DatasetPath == "" {
		c.DatasetPath = DefaultDatasetPath
	}

	if c.Branch.Prefix == "" {
		c.Branch.Prefix = DefaultBranchPrefix
	}

	if c.WriteAttempts <= 0 {
		c.WriteAttempts = DefaultWriteAttempts
	}

	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = DefaultRetryInitialInterval
	}

	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = DefaultRetryMaxInterval
	}

	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}

	c.Templates = c.Templates.WithDefaults()

	return c
}

// Observer receives submission events. Implementations
// must be safe for concurrent use.
type Observer interface {
	// SubmissionFinished reports OutcomeSuccess or the
	// failure Kind with the submission duration.
	SubmissionFinished(outcome string, elapsed time.Duration)

	// WriteRetried reports a stale write about to be
	// retried.
	WriteRetried()

	// BranchCleaned reports an orphan branch deletion.
	BranchCleaned(err error)
}

type nopObserver struct{}

func (nopObserver) SubmissionFinished(string, time.Duration) {}

func (nopObserver) WriteRetried() {}

func (nopObserver) BranchCleaned(error) {}

// Result describes a created proposal.
type Result struct {
	// Message is the rendered success message.
	Message string
	// PRURL is the web address of the pull request.
	PRURL    string
	PRNumber int
	Branch   string
	// Entries is the dataset length after the append.
	Entries int
}

// Option customizes a Proposer.
type Option func(*Proposer)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proposer) {
		p.logger = l
	}
}

// WithClock sets the clock used for branch names and
// durations.
func WithClock(now func() time.Time) Option {
	return func(p *Proposer) {
		p.now = now
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(p *Proposer) {
		p.observer = o
	}
}

// Proposer submits proposals to a host. It holds no
// per-request state and is safe for concurrent use.
type Proposer struct {
	host     host.Host
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
}

// NewProposer returns a Proposer for h. Zero Config
// fields take the package defaults.
func NewProposer(
	h host.Host,
	cfg Config,
	opts ...Option,
) (*Proposer, error) {
	const errCtx = "creating proposer"

	if h == nil {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrNilHost)
	}

	cfg = cfg.withDefaults()

	if err := cfg.Templates.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	p := &Proposer{
		host:     h,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		observer: nopObserver{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Config returns the effective configuration.
func (p *Proposer) Config() Config {
	return p.cfg
}

// Submit validates req and turns it into a pull request.
// Errors are either a *ValidationError, returned before
// any remote call, or an *Error naming the failed step.
func (p *Proposer) Submit(
	ctx context.Context,
	req Request,
) (*Result, error) {
	start := p.now()

	res, err := p.submit(ctx, req)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(KindOf(err))
	}

	p.observer.SubmissionFinished(outcome, p.now().Sub(start))

	return res, err
}

func (p *Proposer) submit(
	ctx context.Context,
	req Request,
) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := p.logger.With(
		"kata", req.Kata,
		"bahasa", req.Bahasa,
	)

	// Step 1: Resolve the integration branch tip.
	baseSHA, err := p.host.GetRef(ctx, p.cfg.BaseBranch)
	if err != nil {
		return nil, p.fail(logger, host.OpGetRef, "", err)
	}

	// Step 2: Name the proposal branch.
	branch := BranchName(p.cfg.Branch, req, p.now())
	logger = logger.With("branch", branch)

	// Step 3: Create the proposal branch.
	if err := p.host.CreateRef(
		ctx, branch, baseSHA,
	); err != nil {
		return nil, p.fail(
			logger, host.OpCreateRef, branch, err,
		)
	}

	logger.Debug("created proposal branch", "sha", baseSHA)

	res, err := p.propose(ctx, logger, req, branch)
	if err != nil {
		p.cleanup(ctx, logger, branch)

		return nil, err
	}

	logger.Info(
		"created proposal",
		"pr", res.PRNumber,
		"url", res.PRURL,
	)

	return res, nil
}

// propose runs the steps that follow branch creation.
func (p *Proposer) propose(
	ctx context.Context,
	logger *slog.Logger,
	req Request,
	branch string,
) (*Result, error) {
	msgs, err := p.cfg.Templates.Render(commitmsg.Fields{
		Kata:   req.Kata,
		Bahasa: req.Bahasa,
		Arti:   req.Arti,
		Branch: branch,
	})
	if err != nil {
		return nil, p.fail(logger, "render", branch, err)
	}

	// Steps 4 to 6: Read, append and write the dataset.
	entries, err := p.writeDataset(
		ctx, logger, req, branch, msgs.Commit,
	)
	if err != nil {
		return nil, err
	}

	// Step 7: Open the pull request.
	pr, err := p.host.CreatePullRequest(
		ctx, branch, p.cfg.BaseBranch, msgs.Title, msgs.Body,
	)
	if err != nil {
		return nil, p.fail(
			logger, host.OpCreatePullRequest, branch, err,
		)
	}

	return &Result{
		Message:  msgs.Success,
		PRURL:    pr.URL,
		PRNumber: pr.Number,
		Branch:   branch,
		Entries:  entries,
	}, nil
}

// writeDataset appends req to the dataset on branch.
// The first attempt reads the integration branch; a
// retry after a stale revision reads the proposal
// branch, where the conditional write is evaluated.
func (p *Proposer) writeDataset(
	ctx context.Context,
	logger *slog.Logger,
	req Request,
	branch string,
	message string,
) (int, error) {
	var (
		attempt int
		entries int
	)

	operation := func() error {
		attempt++

		readFrom := p.cfg.BaseBranch
		if attempt > 1 {
			readFrom = branch

			p.observer.WriteRetried()
		}

		// Step 4: Fetch the dataset and its revision.
		file, err := p.host.GetFile(
			ctx, p.cfg.DatasetPath, readFrom,
		)
		if err != nil {
			return backoff.Permanent(p.fail(
				logger, host.OpGetFile, branch, err,
			))
		}

		// Step 5: Append the entry.
		content, n, err := dataset.Append(file.Content, req)
		if err != nil {
			return backoff.Permanent(p.fail(
				logger, "append", branch, err,
			))
		}

		// Step 6: Conditional write on the branch.
		err = p.host.UpdateFile(ctx, host.FileUpdate{
			Path:     p.cfg.DatasetPath,
			Branch:   branch,
			Content:  content,
			Revision: file.Revision,
			Message:  message,
		})
		if err == nil {
			entries = n

			return nil
		}

		if errors.Is(err, host.ErrStaleRevision) &&
			attempt < p.cfg.WriteAttempts {
			logger.Warn(
				"stale dataset revision, retrying",
				"attempt", attempt,
				"error", err,
			)

			return &Error{
				Kind:   KindWriteConflict,
				Step:   host.OpUpdateFile,
				Branch: branch,
				Err:    err,
			}
		}

		return backoff.Permanent(p.fail(
			logger, host.OpUpdateFile, branch, err,
		))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInitialInterval
	bo.MaxInterval = p.cfg.RetryMaxInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(
		operation,
		backoff.WithContext(
			backoff.WithMaxRetries(
				bo, uint64(p.cfg.WriteAttempts-1),
			),
			ctx,
		),
	)
	if err == nil {
		return entries, nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return 0, err
	}

	// Cancelled while waiting between attempts.
	return 0, p.fail(
		logger, host.OpUpdateFile, branch,
		host.NewError(host.OpUpdateFile, host.ErrTransport, err),
	)
}

// fail logs a failed step and wraps err.
func (p *Proposer) fail(
	logger *slog.Logger,
	step string,
	branch string,
	err error,
) *Error {
	kind := kindFor(err)

	logger.Error(
		"proposal step failed",
		"step", step,
		"kind", kind,
		"error", err,
	)

	return &Error{
		Kind:   kind,
		Step:   step,
		Branch: branch,
		Err:    err,
	}
}

// cleanup deletes an orphan proposal branch. It runs
// even when ctx is already cancelled and never changes
// the submission error.
func (p *Proposer) cleanup(
	ctx context.Context,
	logger *slog.Logger,
	branch string,
) {
	if p.cfg.KeepOrphanBranches {
		logger.Warn("keeping orphan proposal branch")

		return
	}

	cctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), p.cfg.CleanupTimeout,
	)
	defer cancel()

	err := p.host.DeleteRef(cctx, branch)

	p.observer.BranchCleaned(err)

	if err != nil {
		logger.Error(
			"failed to delete orphan proposal branch",
			"error", err,
		)

		return
	}

	logger.Info("deleted orphan proposal branch")
}
