// Package users defines the identity record, the Directory contract every
// storage backend satisfies, role resolution and admin seeding.
package users
