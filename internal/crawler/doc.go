// Package crawler defines the records, outcomes, errors and collaborator
// interfaces shared by the directory crawler's fetch, extract, persist and
// scheduling subsystems.
package crawler
