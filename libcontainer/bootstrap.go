package libcontainer

import "github.com/tsturzl/youki/libcontainer/configs"

// bootstrapPayload is the one-shot JSON value written down a freshly
// started stage's inherited channel fd before any tagged message flows:
// Launcher -> Intermediate, and again Intermediate -> Init. It carries
// the Runtime Plan and the handful of fields a stage needs before it can
// even parse its own argv (it has none — every fork stage is invoked
// with the same argv0 and learns everything from this payload and
// StageEnvVar).
type bootstrapPayload struct {
	Config        *configs.Config
	ContainerRoot string
}
