// Package gitlab implements host.Host for GitLab (gitlab.com or self-hosted).
// Pull requests are GitLab merge requests. The revision token of a file is
// the id of the last commit that touched it, which GitLab checks through
// last_commit_id on update.
package gitlab
