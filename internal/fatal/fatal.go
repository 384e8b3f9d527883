// Package fatal implements the process-abort path for
// durability-invariant violations: KV write failure, duplicate seqnum
// replication, view regress, contradictory metalog. These are never
// retried in-process; a supervisor is expected to restart the node.
package fatal

import (
	"fmt"
	"log/slog"
	"os"
)

// exit is swapped out in tests so Abort's control flow is exercised
// without killing the test binary.
var exit = os.Exit

// Abort logs msg at the error level with the given attrs and
// terminates the process with exit code 1.
func Abort(msg string, args ...any) {
	slog.Error(msg, args...)
	exit(1)
}

// Abortf formats a message and aborts, mirroring fmt.Errorf.
func Abortf(format string, args ...any) {
	Abort(fmt.Sprintf(format, args...))
}
