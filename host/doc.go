// Package host defines the strategy interface used to talk to a source
// hosting service (GitHub, GitLab, Bitbucket Server) when proposing a change
// to a dataset file.
//
// A Host exposes the handful of remote operations the proposal workflow
// needs: resolving and creating branch references, reading a file with its
// revision token, writing a file conditionally on that token, and opening a
// pull request. Implementations live in sub-packages.
//
// Adapters report failures as *Error values whose Kind is one of the
// package sentinel errors, so callers can branch with errors.Is while the
// raw service message stays available through Error().
package host
