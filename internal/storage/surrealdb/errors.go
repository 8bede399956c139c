package surrealdb

import "strings"

// isNotFoundError returns true if the error is due to a non-existent record.
// SurrealDB returns this error when using Select/Delete ONLY on a record that
// doesn't exist.
func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Expected a single result output when using the ONLY keyword")
}

// isIndexConflictError returns true if the error is due to a unique index
// violation, i.e. a concurrent writer won a race this writer lost.
func isIndexConflictError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already contains") && strings.Contains(err.Error(), "index")
}
