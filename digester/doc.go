// Package digester computes and verifies git blob digests. GitHub uses the
// blob SHA-1 of a file as the revision token for conditional writes, so the
// same digest lets a client check that fetched content matches the token it
// was served with, and lets the in-memory host issue realistic tokens.
package digester
