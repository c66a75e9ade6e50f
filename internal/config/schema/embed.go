package schema

import _ "embed"

//go:embed iso-manager-config.schema.json
var ConfigSchema []byte
