// Package klog is a minimal leveled print helper over fmt. A subsystem
// that cannot assume a scheduler or a configured io.Writer pipeline
// writes text to stderr and moves on.
package klog

import (
	"fmt"
	"os"
)

// Warnf prints a warning-level diagnostic.
func Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "memspace: warning: "+format+"\n", args...)
}

// Infof prints an informational diagnostic.
func Infof(format string, args ...any) {
	fmt.Printf("memspace: "+format+"\n", args...)
}
