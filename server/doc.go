// Package server exposes the word submission endpoint
// over HTTP with gin.
//
// Responses are JSON objects carrying a human readable
// message. Failures map onto HTTP statuses by kind;
// legacy mode collapses every remote failure to a
// generic 500 instead.
package server
