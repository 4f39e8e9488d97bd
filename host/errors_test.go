package host_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/usulan/host"
)

func TestError_is_kind_and_cause(t *testing.T) {
	t.Parallel()

	cause := errors.New("409 sha does not match")
	err := host.NewError(
		"update file", host.ErrStaleRevision, cause,
	)

	assert.ErrorIs(t, err, host.ErrStaleRevision)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, host.ErrRefExists)
	assert.Equal(
		t, "update file: 409 sha does not match",
		err.Error(),
	)
}

func TestError_unclassified(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := host.NewError("get ref", nil, cause)

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, host.ErrTransport)
}

func TestNewError_nil_cause_uses_kind(t *testing.T) {
	t.Parallel()

	err := host.NewError("create ref", host.ErrRefExists, nil)

	assert.ErrorIs(t, err, host.ErrRefExists)
	assert.Contains(t, err.Error(), "already exists")
}

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{0, host.ErrTransport},
		{http.StatusUnauthorized, host.ErrUnauthorized},
		{http.StatusForbidden, host.ErrUnauthorized},
		{http.StatusNotFound, host.ErrNotFound},
		{http.StatusTooManyRequests, host.ErrRateLimited},
		{http.StatusBadGateway, host.ErrTransport},
		{http.StatusConflict, nil},
		{http.StatusUnprocessableEntity, nil},
	}

	for _, tt := range tests {
		assert.Equal(
			t, tt.want, host.KindForStatus(tt.status),
			"status %d", tt.status,
		)
	}
}

func TestBodyOrTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "t", host.BodyOrTitle("t", ""))
	assert.Equal(t, "b", host.BodyOrTitle("t", "b"))
}
