// README: Embedded SQL migrations consumed by infra.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
