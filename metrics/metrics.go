package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/byte4ever/usulan/host"
	"github.com/byte4ever/usulan/proposal"
)

const namespace = "usulan"

// Result labels for host calls and cleanups.
const (
	ResultOK            = "ok"
	ResultRefExists     = "ref_exists"
	ResultStaleRevision = "stale_revision"
	ResultUnauthorized  = "unauthorized"
	ResultNotFound      = "not_found"
	ResultRateLimited   = "rate_limited"
	ResultTransport     = "transport"
	ResultError         = "error"
)

// Recorder holds the service metrics.
type Recorder struct {
	submissions      *prometheus.CounterVec
	submissionTime   *prometheus.HistogramVec
	writeRetries     prometheus.Counter
	branchCleanups   *prometheus.CounterVec
	hostCalls        *prometheus.CounterVec
	hostCallDuration *prometheus.HistogramVec
}

var _ proposal.Observer = (*Recorder)(nil)

// NewRecorder creates the metrics and registers them
// with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	const errCtx = "creating metrics recorder"

	r := &Recorder{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Word submissions by outcome.",
			},
			[]string{"outcome"},
		),
		submissionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_duration_seconds",
				Help:      "Time spent handling a submission.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		writeRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_write_retries_total",
				Help:      "Dataset writes retried after a stale revision.",
			},
		),
		branchCleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "branch_cleanups_total",
				Help:      "Orphan proposal branch deletions by result.",
			},
			[]string{"result"},
		),
		hostCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_calls_total",
				Help:      "Remote host calls by operation and result.",
			},
			[]string{"op", "result"},
		),
		hostCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "host_call_duration_seconds",
				Help:      "Latency of remote host calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	for _, c := range []prometheus.Collector{
		r.submissions,
		r.submissionTime,
		r.writeRetries,
		r.branchCleanups,
		r.hostCalls,
		r.hostCallDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return r, nil
}

// SubmissionFinished implements proposal.Observer.
func (r *Recorder) SubmissionFinished(
	outcome string,
	elapsed time.Duration,
) {
	r.submissions.WithLabelValues(outcome).Inc()
	r.submissionTime.WithLabelValues(outcome).
		Observe(elapsed.Seconds())
}

// WriteRetried implements proposal.Observer.
func (r *Recorder) WriteRetried() {
	r.writeRetries.Inc()
}

// BranchCleaned implements proposal.Observer.
func (r *Recorder) BranchCleaned(err error) {
	r.branchCleanups.WithLabelValues(Result(err)).Inc()
}

func (r *Recorder) observeCall(
	op string,
	start time.Time,
	err error,
) {
	r.hostCalls.WithLabelValues(op, Result(err)).Inc()
	r.hostCallDuration.WithLabelValues(op).
		Observe(time.Since(start).Seconds())
}

// Result returns the metric label for the outcome of a
// host call.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, host.ErrRefExists):
		return ResultRefExists
	case errors.Is(err, host.ErrStaleRevision):
		return ResultStaleRevision
	case errors.Is(err, host.ErrUnauthorized):
		return ResultUnauthorized
	case errors.Is(err, host.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, host.ErrRateLimited):
		return ResultRateLimited
	case errors.Is(err, host.ErrTransport):
		return ResultTransport
	default:
		return ResultError
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// instrumentedHost decorates a host.Host with call
// metrics.
//
// Pattern: Decorator -- implements host.Host.
type instrumentedHost struct {
	next host.Host
	rec  *Recorder
}

// InstrumentHost wraps h so that every call is recorded
// by rec.
func InstrumentHost(h host.Host, rec *Recorder) host.Host {
	return &instrumentedHost{next: h, rec: rec}
}

func (ih *instrumentedHost) GetRef(
	ctx context.Context,
	branch string,
) (string, error) {
	start := time.Now()
	sha, err := ih.next.GetRef(ctx, branch)
	ih.rec.observeCall(host.OpGetRef, start, err)

	return sha, err
}

func (ih *instrumentedHost) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	start := time.Now()
	err := ih.next.CreateRef(ctx, branch, sha)
	ih.rec.observeCall(host.OpCreateRef, start, err)

	return err
}

func (ih *instrumentedHost) DeleteRef(
	ctx context.Context,
	branch string,
) error {
	start := time.Now()
	err := ih.next.DeleteRef(ctx, branch)
	ih.rec.observeCall(host.OpDeleteRef, start, err)

	return err
}

func (ih *instrumentedHost) GetFile(
	ctx context.Context,
	path string,
	branch string,
) (*host.File, error) {
	start := time.Now()
	f, err := ih.next.GetFile(ctx, path, branch)
	ih.rec.observeCall(host.OpGetFile, start, err)

	return f, err
}

func (ih *instrumentedHost) UpdateFile(
	ctx context.Context,
	upd host.FileUpdate,
) error {
	start := time.Now()
	err := ih.next.UpdateFile(ctx, upd)
	ih.rec.observeCall(host.OpUpdateFile, start, err)

	return err
}

func (ih *instrumentedHost) CreatePullRequest(
	ctx context.Context,
	from string,
	to string,
	title string,
	body string,
) (*host.PullRequest, error) {
	start := time.Now()
	pr, err := ih.next.CreatePullRequest(ctx, from, to, title, body)
	ih.rec.observeCall(host.OpCreatePullRequest, start, err)

	return pr, err
}
