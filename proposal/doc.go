// Package proposal turns a submitted dictionary entry into
// a pull request on the dataset repository.
//
// A submission is validated, gets its own branch cut from
// the integration branch, appends the entry to the JSON
// dataset with a conditional write, and opens a pull
// request. Nothing is written to the integration branch
// directly. Failures after the branch exists remove it
// again unless configured otherwise.
package proposal
