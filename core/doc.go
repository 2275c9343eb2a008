// Package core defines the shared vocabulary of the devteam pipeline:
// conversation roles, messages, artifacts, project context records and the
// stream events emitted while agents respond. All other packages depend on
// core; core depends on nothing else in the module.
package core
