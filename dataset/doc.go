// Package dataset reads and rewrites the dictionary file: a single JSON
// array of entry objects. Existing elements are kept as raw JSON so their
// field order and content survive a rewrite untouched; new elements are
// appended at the end and the whole array is re-indented with two spaces.
package dataset
