package version

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
	assert.Contains(t, GetFullVersion(), GetVersion())
}

func TestAddFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	AddFlag(fs)

	assert.NotNil(t, fs.Lookup("version"))
	assert.NotNil(t, fs.Lookup("v"))
}
