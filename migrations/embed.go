// Package migrations embeds the schema for every supported driver, one
// directory per driver name.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
