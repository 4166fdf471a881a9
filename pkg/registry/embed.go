package registry

import "embed"

// builtinTools is the baked-in tool catalogue. Operators can add further
// descriptors at runtime by pointing Load's overlayDir at a directory of
// the same *.yaml shape.
//
//go:embed tools
var builtinTools embed.FS

// LoadBuiltin loads the embedded catalogue plus an optional overlay
// directory. This is the entrypoint callers outside this package should use;
// Load itself stays generic over fs.FS so tests can substitute a fake tree.
func (r *Registry) LoadBuiltin(overlayDir string) error {
	return r.Load(builtinTools, "tools", overlayDir)
}
