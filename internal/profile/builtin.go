package profile

import _ "embed"

//go:embed profiles/generic.yaml
var genericYAML []byte

//go:embed profiles/kde.yaml
var kdeYAML []byte

//go:embed profiles/headless.yaml
var headlessYAML []byte

// builtinProfiles maps profile names to their embedded YAML content.
var builtinProfiles = map[string][]byte{
	"generic":  genericYAML,
	"kde":      kdeYAML,
	"headless": headlessYAML,
}
