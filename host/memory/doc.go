// Package memory provides an in-process host.Host backed by maps. It mimics
// GitHub semantics (blob SHA revision tokens, 409-style stale writes,
// duplicate ref rejection) and records every call, which makes it suitable
// for tests and for running the service locally without credentials.
package memory
