// Package capabilities applies a Runtime Plan's five capability sets to
// the calling process, using the same bounding-set-first ordering runc's
// libcontainer/capabilities package establishes: once a capability leaves
// the bounding set it can never return to any other set for this process,
// so bounding must be dropped before effective/permitted/inheritable.
package capabilities

import (
	"strings"

	capability "github.com/moby/sys/capability"
	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/configs"
)

var byName = buildCapabilityMap()

func buildCapabilityMap() map[string]capability.Cap {
	m := make(map[string]capability.Cap)
	last, err := capability.LastCap()
	if err != nil {
		return m
	}
	for c := capability.Cap(0); c <= last; c++ {
		m["CAP_"+strings.ToUpper(c.String())] = c
	}
	return m
}

func capsFromNames(names []string) ([]capability.Cap, error) {
	out := make([]capability.Cap, 0, len(names))
	for _, n := range names {
		c, ok := byName[strings.ToUpper(n)]
		if !ok {
			return nil, errors.Errorf("unknown capability %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// ResetEffective clears the effective set, the step §4.1 S2 performs
// immediately before dropping to the plan's requested sets ("resets
// effective capabilities, then drops to the requested capability sets").
func ResetEffective() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return errors.Wrap(err, "load current capabilities")
	}
	if err := caps.Load(); err != nil {
		return errors.Wrap(err, "load current capabilities")
	}
	caps.Clear(capability.EFFECTIVE)
	return errors.Wrap(caps.Apply(capability.EFFECTIVE), "apply cleared effective set")
}

// Drop applies the plan's bounding, effective, inheritable, permitted and
// ambient sets in that order (§3 Process plan: "capabilities
// (ambient/bounding/effective/inheritable/permitted sets)"). A nil plan
// leaves the inherited capability sets untouched.
func Drop(c *configs.Capabilities) error {
	if c == nil {
		return nil
	}
	caps, err := capability.NewPid2(0)
	if err != nil {
		return errors.Wrap(err, "load current capabilities")
	}
	if err := caps.Load(); err != nil {
		return errors.Wrap(err, "load current capabilities")
	}

	sets := []struct {
		kind  capability.CapType
		names []string
	}{
		{capability.BOUNDING, c.Bounding},
		{capability.EFFECTIVE, c.Effective},
		{capability.INHERITABLE, c.Inheritable},
		{capability.PERMITTED, c.Permitted},
		{capability.AMBIENT, c.Ambient},
	}

	for _, set := range sets {
		keep, err := capsFromNames(set.names)
		if err != nil {
			return err
		}
		caps.Clear(set.kind)
		caps.Set(set.kind, keep...)
		if err := caps.Apply(set.kind); err != nil {
			return errors.Wrapf(err, "apply %v capability set", set.kind)
		}
	}
	return nil
}
