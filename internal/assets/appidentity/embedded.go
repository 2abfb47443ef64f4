package appidentityassets

import _ "embed"

// YAML is the embedded copy of `.fulmen/app.yaml`, mirrored into a Go-embeddable
// location for standalone binary behavior.
//
// Edit this copy and `.fulmen/app.yaml` together.
//
//go:embed app.yaml
var YAML []byte
