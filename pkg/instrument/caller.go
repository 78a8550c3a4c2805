package instrument

import (
	"fmt"
	"runtime"
	"strings"
)

const maxCallerFrames = 10

// Frames from these packages are never reported as statement sources.
var skippedPackages = []string{
	"runtime.",
	"database/sql.",
	"sql-tracker/pkg/instrument.",
	"gorm.io/",
}

// callers returns file:line locations of the frames that led to the current
// statement, innermost first, excluding database/sql and driver plumbing.
func callers() []string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		frame, more := frames.Next()
		if !skipFrame(frame.Function) {
			out = append(out, fmt.Sprintf("%s:%d", frame.File, frame.Line))
			if len(out) >= maxCallerFrames {
				break
			}
		}
		if !more {
			break
		}
	}
	return out
}

func skipFrame(function string) bool {
	if function == "" {
		return true
	}
	for _, prefix := range skippedPackages {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}
