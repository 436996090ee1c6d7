package main

import (
	"path/filepath"

	"github.com/tsturzl/youki/libcontainer"
	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/specconv"
)

// reloadConfig re-derives the Runtime Plan from a persisted container's
// recorded bundle path, for the lifecycle commands (start/kill/delete)
// that need plan details (hooks, cgroup path) the State document itself
// does not carry.
func reloadConfig(state *libcontainer.State) (*configs.Config, error) {
	spec, err := specconv.LoadSpec(filepath.Join(state.Bundle, "config.json"))
	if err != nil {
		return nil, err
	}
	rootfsPath := spec.Root.Path
	if !filepath.IsAbs(rootfsPath) {
		rootfsPath = filepath.Join(state.Bundle, rootfsPath)
	}
	return specconv.ToConfig(spec, state.ID, state.Bundle, rootfsPath)
}
