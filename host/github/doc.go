// Package github implements host.Host on top of the GitHub REST API (cloud
// or enterprise). Configure with a Config containing the repository owner,
// name, and access token. Set EnterpriseHost for GitHub Enterprise
// installations.
//
// The revision token of a file is its blob SHA. Fetched content is checked
// against that SHA before it is handed to the caller.
package github
