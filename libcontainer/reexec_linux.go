package libcontainer

import (
	"fmt"
	"os"
)

// StageEnvVar is read by cmd/youki's entrypoint before the CLI dispatcher
// runs, to detect that this invocation is actually a re-exec of itself
// into one of the S1/S2 fork-choreography stages rather than a
// fresh user-issued command. §9: "Implementations must use OS-level
// process creation with explicit namespace flags" — the only way to get
// a namespace-scoped fresh process image from Go is to clone(2)+execve(2)
// the same binary and have the child recognize its own stage on the
// other side, since new mount/pid namespaces only take effect for an
// addressable process image, not a goroutine.
const StageEnvVar = "_LIBCONTAINER_STAGE"

const (
	stageIntermediate = "intermediate"
	stageInit         = "init"
)

// RunStage dispatches to the S1 or S2 stage body. Call it from
// cmd/youki's entrypoint, before the normal CLI parses anything, whenever
// StageEnvVar is set. Neither branch returns on its success path:
// runIntermediateStage calls os.Exit once it has forwarded Init's pid,
// and runInitStage execs the payload, replacing the process image.
func RunStage(stage string) {
	switch stage {
	case stageIntermediate:
		runIntermediateStage()
	case stageInit:
		runInitStage()
	default:
		fmt.Fprintf(os.Stderr, "youki: unknown fork stage %q\n", stage)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "youki: fork stage returned unexpectedly")
	os.Exit(1)
}
