package github_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/usulan/digester"
	"github.com/byte4ever/usulan/host"
	ghprov "github.com/byte4ever/usulan/host/github"
)

func TestNewProvider_valid(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner:   "org",
		Repo:        "repo",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_missing_owner(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		Repo:        "repo",
		AccessToken: "tok",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "repo owner")
}

func TestNewProvider_missing_repo(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner:   "org",
		AccessToken: "tok",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "repo must be set")
}

func TestNewProvider_missing_token(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner: "org",
		Repo:      "repo",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "access token")
}

func TestNewProvider_enterprise(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner:      "org",
		Repo:           "repo",
		AccessToken:    "tok",
		EnterpriseHost: "git.corp.example.com",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

// newTestProvider starts a fake GitHub API serving mux
// and returns a provider pointed at it.
func newTestProvider(
	t *testing.T,
	mux *http.ServeMux,
) *ghprov.Provider {
	t.Helper()

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner:   "org",
		Repo:        "repo",
		AccessToken: "tok",
		APIURL:      ts.URL,
	})
	require.NoError(t, err)

	return pv
}

func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProvider_GetRef(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /repos/org/repo/git/ref/heads/main",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t, "Bearer tok",
				r.Header.Get("Authorization"),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"ref": "refs/heads/main",
				"object": map[string]any{
					"sha":  "abc123",
					"type": "commit",
				},
			})
		},
	)

	pv := newTestProvider(t, mux)

	sha, err := pv.GetRef(context.Background(), "main")

	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestProvider_GetRef_unauthorized(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /repos/org/repo/git/ref/heads/main",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized,
				map[string]any{"message": "Bad credentials"},
			)
		},
	)

	pv := newTestProvider(t, mux)

	_, err := pv.GetRef(context.Background(), "main")

	assert.ErrorIs(t, err, host.ErrUnauthorized)
	assert.ErrorContains(t, err, "Bad credentials")
}

func TestProvider_CreateRef(t *testing.T) {
	t.Parallel()

	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST /repos/org/repo/git/refs",
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got),
			)
			writeJSON(w, http.StatusCreated, got)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.CreateRef(
		context.Background(), "usulan/x-1", "abc123",
	)

	require.NoError(t, err)
	assert.Equal(t, "refs/heads/usulan/x-1", got["ref"])
	assert.Equal(t, "abc123", got["sha"])
}

func TestProvider_CreateRef_exists(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST /repos/org/repo/git/refs",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity,
				map[string]any{
					"message": "Reference already exists",
				},
			)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.CreateRef(
		context.Background(), "usulan/x-1", "abc123",
	)

	assert.ErrorIs(t, err, host.ErrRefExists)
}

func TestProvider_DeleteRef(t *testing.T) {
	t.Parallel()

	called := false

	mux := http.NewServeMux()
	mux.HandleFunc(
		"DELETE /repos/org/repo/git/refs/heads/usulan/x-1",
		func(w http.ResponseWriter, _ *http.Request) {
			called = true

			w.WriteHeader(http.StatusNoContent)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.DeleteRef(context.Background(), "usulan/x-1")

	require.NoError(t, err)
	assert.True(t, called)
}

func TestProvider_GetFile(t *testing.T) {
	t.Parallel()

	content := []byte(`[{"kata":"a","bahasa":"b","arti":"c"}]`)

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /repos/org/repo/contents/database.json",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t, "main", r.URL.Query().Get("ref"),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"type":     "file",
				"encoding": "base64",
				"content": base64.StdEncoding.
					EncodeToString(content),
				"sha": digester.BlobSHA(content),
			})
		},
	)

	pv := newTestProvider(t, mux)

	fi, err := pv.GetFile(
		context.Background(), "database.json", "main",
	)

	require.NoError(t, err)
	assert.Equal(t, content, fi.Content)
	assert.Equal(t, digester.BlobSHA(content), fi.Revision)
}

func TestProvider_GetFile_digest_mismatch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /repos/org/repo/contents/database.json",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"type":     "file",
				"encoding": "base64",
				"content": base64.StdEncoding.
					EncodeToString([]byte("[]")),
				"sha": "0000000000000000000000000000000000000000",
			})
		},
	)

	pv := newTestProvider(t, mux)

	_, err := pv.GetFile(
		context.Background(), "database.json", "main",
	)

	assert.ErrorIs(t, err, digester.ErrMismatch)
}

func TestProvider_GetFile_not_found(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET /repos/org/repo/contents/database.json",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound,
				map[string]any{"message": "Not Found"},
			)
		},
	)

	pv := newTestProvider(t, mux)

	_, err := pv.GetFile(
		context.Background(), "database.json", "main",
	)

	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestProvider_UpdateFile(t *testing.T) {
	t.Parallel()

	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc(
		"PUT /repos/org/repo/contents/database.json",
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"content": map[string]any{"sha": "new"},
			})
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.UpdateFile(context.Background(), host.FileUpdate{
		Path:     "database.json",
		Branch:   "usulan/x-1",
		Content:  []byte("[]"),
		Revision: "oldsha",
		Message:  "add word",
	})

	require.NoError(t, err)
	assert.Equal(t, "usulan/x-1", got["branch"])
	assert.Equal(t, "oldsha", got["sha"])
	assert.Equal(t, "add word", got["message"])
	assert.Equal(
		t,
		base64.StdEncoding.EncodeToString([]byte("[]")),
		got["content"],
	)
}

func TestProvider_UpdateFile_stale(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"PUT /repos/org/repo/contents/database.json",
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			writeJSON(w, http.StatusConflict,
				map[string]any{
					"message": "database.json does not " +
						"match oldsha",
				},
			)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.UpdateFile(context.Background(), host.FileUpdate{
		Path:     "database.json",
		Branch:   "usulan/x-1",
		Content:  []byte("[]"),
		Revision: "oldsha",
		Message:  "add word",
	})

	assert.ErrorIs(t, err, host.ErrStaleRevision)
	assert.ErrorContains(t, err, "does not match")
}

func TestProvider_CreatePullRequest(t *testing.T) {
	t.Parallel()

	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST /repos/org/repo/pulls",
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got),
			)
			writeJSON(w, http.StatusCreated, map[string]any{
				"number":   7,
				"html_url": "https://github.com/org/repo/pull/7",
			})
		},
	)

	pv := newTestProvider(t, mux)

	pr, err := pv.CreatePullRequest(
		context.Background(),
		"usulan/x-1", "main", "title", "body",
	)

	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(
		t, "https://github.com/org/repo/pull/7", pr.URL,
	)
	assert.Equal(t, "usulan/x-1", got["head"])
	assert.Equal(t, "main", got["base"])
	assert.Equal(t, "title", got["title"])
	assert.Equal(t, "body", got["body"])
}

func TestProvider_transport_failure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	pv, err := ghprov.NewProvider(ghprov.Config{
		RepoOwner:   "org",
		Repo:        "repo",
		AccessToken: "tok",
		APIURL:      url,
	})
	require.NoError(t, err)

	_, err = pv.GetRef(context.Background(), "main")

	assert.ErrorIs(t, err, host.ErrTransport)
}
