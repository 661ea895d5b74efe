// Package database provides the PostgreSQL connection pool used for
// price history. The scanner runs without a database when none is
// configured.
package database
