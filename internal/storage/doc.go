// Package storage implements users.Directory on three backends: an
// in-process map ("memory"), SQLite ("sqlite", modernc driver) and
// PostgreSQL ("postgres", pgxpool). SQL schemas live under migrations/ and
// are applied with golang-migrate when a store is opened.
package storage
