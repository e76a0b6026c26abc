// Package postgres persists principals, password history, and group trees
// in PostgreSQL. It implements both goIAM.CredentialStore and
// hierarchy.GroupStore on a database/sql pool backed by the pgx driver.
//
// The lockout transition runs as a single guarded UPDATE so concurrent
// failed logins serialize on the row lock; group reparenting revalidates
// acyclicity inside its transaction with the affected rows locked.
package postgres
