package catalog

import (
	_ "embed"
)

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in education catalog definition.
func Default() Definition {
	def, err := Parse(defaultYAML)
	if err != nil {
		panic("catalog: built-in catalog is invalid: " + err.Error())
	}
	return def
}
