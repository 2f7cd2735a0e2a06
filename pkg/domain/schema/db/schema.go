package db

import "context"

// SchemaInterface represents a database schema.
type SchemaInterface interface {
	// Upgrade upgrades the schema to the latest version.
	Upgrade(ctx context.Context) error

	// Version returns the current version of the schema in the database.
	//
	// It is 0 when no schema is applied yet.
	Version(ctx context.Context) (int, error)

	// Latest returns the newest version in the schema repository.
	Latest() (int, error)

	// Context returns a context which is canceled when the schema in the database is not latest.
	//
	// # Returns
	//
	// - context.Context: canceled when the schema in database is older than the repository.
	// The cause can be got with context.Cause.
	//
	// - context.CancelFunc: stops watching.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}
