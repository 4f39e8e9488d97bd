package digester_test

import (
	"testing"

	"github.com/byte4ever/usulan/digester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobSHA_matches_git(t *testing.T) {
	t.Parallel()

	// git hash-object of an empty file.
	assert.Equal(
		t,
		"e69de29bb2d1d6434b8b29ae775ad8c2e48c5391",
		digester.BlobSHA(nil),
	)

	// printf 'hello\n' | git hash-object --stdin
	assert.Equal(
		t,
		"ce013625030ba8dba906f756967f9e9ca394464a",
		digester.BlobSHA([]byte("hello\n")),
	)
}

func TestBlobSHA_changes_with_content(t *testing.T) {
	t.Parallel()

	assert.NotEqual(
		t,
		digester.BlobSHA([]byte("[]")),
		digester.BlobSHA([]byte("[ ]")),
	)
}

func TestVerifyBlob(t *testing.T) {
	t.Parallel()

	content := []byte("hello\n")

	require.NoError(t, digester.VerifyBlob(
		content, digester.BlobSHA(content),
	))
	require.NoError(t, digester.VerifyBlob(content, ""))

	err := digester.VerifyBlob(content, "deadbeef")
	assert.ErrorIs(t, err, digester.ErrMismatch)
}
