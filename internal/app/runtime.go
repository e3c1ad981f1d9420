package app

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// testModeEnv makes both binaries return before touching Postgres or Redis,
// so cmd packages stay importable from go test.
const testModeEnv = "TOOLCRIB_TEST_MODE"

const (
	testModeUnknown int32 = iota
	testModeOff
	testModeOn
)

var testMode atomic.Int32

// InTestMode reports whether TOOLCRIB_TEST_MODE is truthy. The variable is
// read on first use and cached until RefreshTestMode.
func InTestMode() bool {
	if testMode.Load() == testModeUnknown {
		RefreshTestMode()
	}
	return testMode.Load() == testModeOn
}

// RefreshTestMode re-reads TOOLCRIB_TEST_MODE.
func RefreshTestMode() {
	state := testModeOff
	if on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv))); err == nil && on {
		state = testModeOn
	}
	testMode.Store(state)
}
