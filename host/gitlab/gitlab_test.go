package gitlab_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/usulan/host"
	glprov "github.com/byte4ever/usulan/host/gitlab"
)

func TestNewProvider_valid(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_custom_host(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        "https://gl.corp.example.com",
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_missing_token(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo: "org/project",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "access token")
}

func TestNewProvider_missing_repo(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		AccessToken: "tok",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "repo must be set")
}

const projectPrefix = "/api/v4/projects/{pid}/"

func newTestProvider(
	t *testing.T,
	mux *http.ServeMux,
) *glprov.Provider {
	t.Helper()

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        ts.URL,
		Repo:        "org/project",
		AccessToken: "tok",
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
		"GET "+projectPrefix+"repository/branches/{branch}",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "org/project", r.PathValue("pid"))
			assert.Equal(t, "main", r.PathValue("branch"))
			assert.Equal(
				t, "tok", r.Header.Get("PRIVATE-TOKEN"),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"name":   "main",
				"commit": map[string]any{"id": "c0ffee"},
			})
		},
	)

	pv := newTestProvider(t, mux)

	sha, err := pv.GetRef(context.Background(), "main")

	require.NoError(t, err)
	assert.Equal(t, "c0ffee", sha)
}

func TestProvider_CreateRef_exists(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST "+projectPrefix+"repository/branches",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest,
				map[string]any{
					"message": "Branch already exists",
				},
			)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.CreateRef(
		context.Background(), "usulan/x-1", "c0ffee",
	)

	assert.ErrorIs(t, err, host.ErrRefExists)
}

func TestProvider_GetFile(t *testing.T) {
	t.Parallel()

	content := []byte("[]\n")

	mux := http.NewServeMux()
	mux.HandleFunc(
		"GET "+projectPrefix+"repository/files/{file}",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(
				t, "database.json", r.PathValue("file"),
			)
			assert.Equal(
				t, "main", r.URL.Query().Get("ref"),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"file_name": "database.json",
				"file_path": "database.json",
				"encoding":  "base64",
				"content": base64.StdEncoding.
					EncodeToString(content),
				"last_commit_id": "beef",
			})
		},
	)

	pv := newTestProvider(t, mux)

	fi, err := pv.GetFile(
		context.Background(), "database.json", "main",
	)

	require.NoError(t, err)
	assert.Equal(t, content, fi.Content)
	assert.Equal(t, "beef", fi.Revision)
}

func TestProvider_UpdateFile(t *testing.T) {
	t.Parallel()

	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc(
		"PUT "+projectPrefix+"repository/files/{file}",
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got),
			)
			writeJSON(w, http.StatusOK, map[string]any{
				"file_path": "database.json",
				"branch":    "usulan/x-1",
			})
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.UpdateFile(context.Background(), host.FileUpdate{
		Path:     "database.json",
		Branch:   "usulan/x-1",
		Content:  []byte("[1]"),
		Revision: "beef",
		Message:  "add word",
	})

	require.NoError(t, err)
	assert.Equal(t, "usulan/x-1", got["branch"])
	assert.Equal(t, "beef", got["last_commit_id"])
	assert.Equal(t, "[1]", got["content"])
	assert.Equal(t, "add word", got["commit_message"])
}

func TestProvider_UpdateFile_stale(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"PUT "+projectPrefix+"repository/files/{file}",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest,
				map[string]any{
					"message": "You are attempting to " +
						"update a file that has changed " +
						"since you started editing it.",
				},
			)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.UpdateFile(context.Background(), host.FileUpdate{
		Path:     "database.json",
		Branch:   "usulan/x-1",
		Content:  []byte("[1]"),
		Revision: "beef",
		Message:  "add word",
	})

	assert.ErrorIs(t, err, host.ErrStaleRevision)
}

func TestProvider_CreatePullRequest(t *testing.T) {
	t.Parallel()

	var got map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST "+projectPrefix+"merge_requests",
		func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t,
				json.NewDecoder(r.Body).Decode(&got),
			)
			writeJSON(w, http.StatusCreated, map[string]any{
				"iid":     3,
				"web_url": "https://gitlab.com/org/project/-/merge_requests/3",
			})
		},
	)

	pv := newTestProvider(t, mux)

	pr, err := pv.CreatePullRequest(
		context.Background(),
		"usulan/x-1", "main", "title", "",
	)

	require.NoError(t, err)
	assert.Equal(t, 3, pr.Number)
	assert.Contains(t, pr.URL, "merge_requests/3")
	assert.Equal(t, "usulan/x-1", got["source_branch"])
	assert.Equal(t, "main", got["target_branch"])
	// Empty body falls back to the title.
	assert.Equal(t, "title", got["description"])
}

func TestProvider_forbidden(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"DELETE "+projectPrefix+"repository/branches/{branch}",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusForbidden,
				map[string]any{"message": "403 Forbidden"},
			)
		},
	)

	pv := newTestProvider(t, mux)

	err := pv.DeleteRef(context.Background(), "usulan/x-1")

	assert.ErrorIs(t, err, host.ErrUnauthorized)
}
