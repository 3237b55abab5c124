package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

// LoadUnit reads a unit from its canonical JSON file.
func LoadUnit(path string) (*ir.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit: %w", err)
	}
	var u ir.Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse unit %s: %w", path, err)
	}
	if u.Name == "" {
		return nil, fmt.Errorf("unit %s: missing name", path)
	}
	return &u, nil
}

// WriteUnit writes a unit to path in canonical form, or to stdout-like
// writers when the command streams instead.
func WriteUnit(path string, u *ir.Unit) error {
	data, err := ir.MarshalCanonical(u)
	if err != nil {
		return fmt.Errorf("serialize unit: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	return nil
}

// LoadPolicy compiles a CUE policy file, or returns the default
// configuration when no path is given. Compilation diagnostics are
// returned alongside; they are warnings, not failures.
func LoadPolicy(path string) (*policy.Config, []ir.Diag, error) {
	if path == "" {
		return policy.Default(), nil, nil
	}
	return policy.CompileFile(path)
}
