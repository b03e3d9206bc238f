// Package migrations carries the history schema. Importing it for side
// effects hands the SQL files to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/robojar-core/internal/infrastructure/database"
)

//go:embed *.sql
var schema embed.FS

func init() {
	database.MigrationsFS = schema
	database.MigrationsDir = "."
}
