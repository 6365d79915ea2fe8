package pkg

import (
	"strings"
	"unsafe"
)

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}

// VersionFromGitOutput cleans up the raw `git rev-parse HEAD` output.
func VersionFromGitOutput(out []byte) string {
	return strings.TrimSpace(BytesToString(out))
}
