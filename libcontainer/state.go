// Package libcontainer's state.go implements §3's Container State: the
// JSON document persisted per container under the runtime root, and the
// status DAG that governs which lifecycle commands are legal when.
package libcontainer

import (
	"os"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/lcerr"
	"github.com/tsturzl/youki/libcontainer/utils"
)

// ociVersion is the fixed oci_version every state document carries, §3.
const ociVersion = "1.0.2"

// Status is one node of the §3 status DAG: creating -> created -> running
// -> stopped.
type Status string

const (
	StatusCreating Status = "creating"
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
)

// canTransition enumerates the DAG's edges; Status -> Status is legal iff
// present. There is no self-loop: callers that re-persist the same status
// (e.g. re-running state detection) should not call Transition at all.
var canTransition = map[Status]Status{
	StatusCreating: StatusCreated,
	StatusCreated:  StatusRunning,
	StatusRunning:  StatusStopped,
}

// State is the §3 Container State, serialized as
// "<root>/<id>/state.json". JSON keys are camelCase per §6's wire format
// rule.
type State struct {
	OCIVersion  string            `json:"ociVersion"`
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Pid         int               `json:"pid,omitempty"`
	Bundle      string            `json:"bundle"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// NewCreatingState builds the in-memory-only state for a container that
// has not yet been persisted: §3's invariant "creating is never
// observable by another process (the state file is first written at
// created)" means this value is never passed to SaveState.
func NewCreatingState(id, bundle string, annotations map[string]string) *State {
	return &State{
		OCIVersion:  ociVersion,
		ID:          id,
		Status:      StatusCreating,
		Bundle:      bundle,
		Annotations: utils.Annotations(annotations),
	}
}

// Transition moves s to next, enforcing the DAG edges in canTransition.
// It does not check Pid; callers set Pid themselves (the Launcher sets it
// before moving to created).
func (s *State) Transition(next Status) error {
	allowed, ok := canTransition[s.Status]
	if !ok || allowed != next {
		return lcerr.NewErrorf(lcerr.StateConflict, "illegal status transition %s -> %s", s.Status, next)
	}
	s.Status = next
	return nil
}

// SortedAnnotations returns the annotation map as a slice of key/value
// pairs sorted by key, so output built from it is stable despite Go's
// unordered map iteration — §3: "order preserved only for stable
// external output".
type Annotation struct {
	Key, Value string
}

func (s *State) SortedAnnotations() []Annotation {
	out := make([]Annotation, 0, len(s.Annotations))
	for k, v := range s.Annotations {
		out = append(out, Annotation{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// statePath returns "<root>/<id>/state.json".
func statePath(root, id string) string {
	return root + "/" + id + "/state.json"
}

// SaveState atomically persists s, the Launcher's exclusive write path
// (§5: "The state file is rewritten atomically via open-truncate-write by
// the single owning Launcher"), strengthened per SUPPLEMENTED FEATURES #4
// to write-then-rename so readers never observe a half-written file.
func SaveState(root string, s *State) error {
	if s.Status == StatusCreating {
		return lcerr.NewError(lcerr.Fatal, "refusing to persist a creating-status state (§3 invariant)")
	}
	return utils.WriteJSON(statePath(root, s.ID), s)
}

// LoadState reads a container's persisted state and checks its
// oci_version is compatible (same major/minor) with the version this
// runtime understands, using Masterminds/semver for a real range check
// rather than a brittle string compare.
func LoadState(root, id string) (*State, error) {
	var s State
	if err := utils.ReadJSON(statePath(root, id), &s); err != nil {
		return nil, errors.Wrapf(err, "read state for %s", id)
	}
	if err := checkOCIVersion(s.OCIVersion); err != nil {
		return nil, err
	}
	return &s, nil
}

func checkOCIVersion(v string) error {
	have, err := semver.NewVersion(v)
	if err != nil {
		return lcerr.NewErrorf(lcerr.ConfigInvalid, "unparsable oci_version %q", v)
	}
	constraint, err := semver.NewConstraint("~1.0")
	if err != nil {
		return errors.Wrap(err, "parse oci_version constraint")
	}
	if !constraint.Check(have) {
		return lcerr.NewErrorf(lcerr.ConfigInvalid, "unsupported oci_version %s", v)
	}
	return nil
}

// StateExists reports whether a container id already has a runtime
// directory, the claim mechanism described in §5 ("the runtime
// serializes writes per container id via the container root directory's
// existence").
func StateExists(root, id string) bool {
	_, err := os.Stat(root + "/" + id)
	return err == nil
}
