// Package bitbucket implements host.Host against the Bitbucket Server REST
// API 1.0 with plain net/http. Configure with the server base URL, project
// key, repository slug, and API credentials.
//
// The revision token of a file is the id of the latest commit touching it
// on the requested branch; file edits are sent to the browse endpoint with
// that id as sourceCommitId.
package bitbucket
