package digester

import (
	"crypto/sha1" //nolint:gosec // git object ids are sha1
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// ErrMismatch is returned when content does not hash to
// the expected blob SHA.
var ErrMismatch = errors.New("blob digest mismatch")

// BlobSHA returns the git object id of content stored as
// a blob: sha1("blob <len>\x00<content>") in hex.
func BlobSHA(content []byte) string {
	ha := sha1.New() //nolint:gosec // git object ids are sha1

	ha.Write([]byte("blob "))
	ha.Write([]byte(strconv.Itoa(len(content))))
	ha.Write([]byte{0})
	ha.Write(content)

	return hex.EncodeToString(ha.Sum(nil))
}

// VerifyBlob checks that content hashes to sha. An empty
// sha is accepted since some hosts omit it.
func VerifyBlob(content []byte, sha string) error {
	const errCtx = "verifying blob digest"

	if sha == "" {
		return nil
	}

	if got := BlobSHA(content); got != sha {
		return fmt.Errorf(
			"%s: got %s want %s: %w",
			errCtx, got, sha, ErrMismatch,
		)
	}

	return nil
}
