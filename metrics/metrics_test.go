package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/usulan/host"
	"github.com/byte4ever/usulan/host/memory"
	"github.com/byte4ever/usulan/metrics"
	"github.com/byte4ever/usulan/proposal"
)

func newRecorder(
	t *testing.T,
) (*metrics.Recorder, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()

	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	return rec, reg
}

func TestNewRecorder_duplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	_, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	_, err = metrics.NewRecorder(reg)
	require.Error(t, err)
}

func TestResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, metrics.ResultOK},
		{host.ErrRefExists, metrics.ResultRefExists},
		{host.ErrStaleRevision, metrics.ResultStaleRevision},
		{host.ErrUnauthorized, metrics.ResultUnauthorized},
		{host.ErrNotFound, metrics.ResultNotFound},
		{host.ErrRateLimited, metrics.ResultRateLimited},
		{host.ErrTransport, metrics.ResultTransport},
		{errors.New("boom"), metrics.ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			var err error
			if tt.err != nil {
				err = host.NewError("op", tt.err, nil)
			}

			assert.Equal(t, tt.want, metrics.Result(err))
		})
	}
}

func TestRecorder_observer(t *testing.T) {
	t.Parallel()

	rec, reg := newRecorder(t)

	rec.SubmissionFinished(proposal.OutcomeSuccess, time.Second)
	rec.SubmissionFinished(proposal.OutcomeSuccess, time.Second)
	rec.SubmissionFinished(
		string(proposal.KindWriteConflict), time.Second,
	)
	rec.WriteRetried()
	rec.BranchCleaned(nil)
	rec.BranchCleaned(
		host.NewError(host.OpDeleteRef, host.ErrUnauthorized, nil),
	)

	require.NoError(t, testutil.GatherAndCompare(
		reg,
		strings.NewReader(`
# HELP usulan_submissions_total Word submissions by outcome.
# TYPE usulan_submissions_total counter
usulan_submissions_total{outcome="success"} 2
usulan_submissions_total{outcome="write-conflict"} 1
`),
		"usulan_submissions_total",
	))

	count, err := testutil.GatherAndCount(
		reg, "usulan_branch_cleanups_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstrumentHost(t *testing.T) {
	t.Parallel()

	rec, reg := newRecorder(t)

	mem := memory.New(
		"https://example.com/r", "main",
		map[string][]byte{"database.json": []byte("[]")},
	)
	h := metrics.InstrumentHost(mem, rec)

	ctx := context.Background()

	sha, err := h.GetRef(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, h.CreateRef(ctx, "feature", sha))

	err = h.CreateRef(ctx, "feature", sha)
	require.ErrorIs(t, err, host.ErrRefExists)

	file, err := h.GetFile(ctx, "database.json", "feature")
	require.NoError(t, err)

	require.NoError(t, h.UpdateFile(ctx, host.FileUpdate{
		Path:     "database.json",
		Branch:   "feature",
		Content:  []byte(`[{"kata":"a"}]`),
		Revision: file.Revision,
		Message:  "add",
	}))

	_, err = h.CreatePullRequest(ctx, "feature", "main", "t", "b")
	require.NoError(t, err)
	require.NoError(t, h.DeleteRef(ctx, "feature"))

	n, err := testutil.GatherAndCount(
		reg, "usulan_host_calls_total",
	)
	require.NoError(t, err)
	// create-ref has both an ok and a ref_exists series.
	assert.Equal(t, 7, n)

	assert.Equal(t, []string{
		host.OpGetRef,
		host.OpCreateRef,
		host.OpCreateRef,
		host.OpGetFile,
		host.OpUpdateFile,
		host.OpCreatePullRequest,
		host.OpDeleteRef,
	}, mem.Calls())
}

func TestHandler(t *testing.T) {
	t.Parallel()

	rec, reg := newRecorder(t)
	rec.WriteRetried()

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // test
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
