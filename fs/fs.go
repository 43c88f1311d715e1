package appfs

import "embed"

// FS embeds the database migrations and the mail templates so that binaries
// remain self-contained regardless of the working directory they run from.
//go:embed migrations templates
var FS embed.FS
