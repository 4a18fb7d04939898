// Package db provides the embedded goose migrations for the checkout schema.
package db

import "embed"

// Migrations holds the SQL migration files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
