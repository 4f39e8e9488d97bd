// Package commitmsg renders the human-facing text of a proposal: the commit
// message, the pull request title and body, and the success message returned
// to the submitter. Texts are fasttemplate templates with {{kata}},
// {{bahasa}}, {{arti}} and {{branch}} placeholders.
package commitmsg
