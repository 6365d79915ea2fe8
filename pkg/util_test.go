package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBytesToString(t *testing.T) {
	want := "test"
	stringBytes := []byte(want)
	got := BytesToString(stringBytes)
	assert.Equal(t, want, got)
	assert.Equal(t, "", BytesToString(nil))
}

func TestVersionFromGitOutput(t *testing.T) {
	assert.Equal(t, "a1b2c3", VersionFromGitOutput([]byte("a1b2c3\n")))
	assert.Equal(t, "", VersionFromGitOutput(nil))
}
