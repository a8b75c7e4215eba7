// Package app wires configuration, integrations and the triage pipeline into
// the jiratriage command line.
package app

import (
	"os"
)

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
