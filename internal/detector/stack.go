package detector

import (
	"fmt"
	"strings"

	"golang.org/x/exp/trace"
)

// formatStack renders s one frame per line and returns the first frame that
// belongs to neither the runtime nor the testing harness.
func formatStack(s trace.Stack) (stack, function, location string) {
	var sb strings.Builder
	for f := range s.Frames() {
		fmt.Fprintf(&sb, "      %s (%s:%d)\n", f.Func, f.File, f.Line)
		if function == "" && !isRuntimeFrame(f.Func, f.File) {
			function = f.Func
			location = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
	}
	return sb.String(), function, location
}

func isRuntimeFrame(fn, file string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "runtime/") ||
		strings.HasPrefix(fn, "internal/") ||
		strings.HasPrefix(fn, "testing.") ||
		strings.HasPrefix(fn, "sync.") ||
		strings.HasPrefix(fn, "golang.org/x/sync/") ||
		strings.Contains(file, "/src/runtime/") ||
		strings.HasSuffix(file, "_testmain.go")
}

// isLockWait reports whether a wait reason comes from a sync primitive. The
// tracer labels every sync wait "sync", sometimes with a suffix.
func isLockWait(reason string) bool {
	return strings.HasPrefix(reason, "sync")
}
