// Package testing switches binaries into test mode when imported by test files.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("LICENSEOPS_TEST_MODE", "1")
		for key, value := range map[string]string{
			"GOTENBERG_URL":  "http://127.0.0.1:0",
			"BACKEND_URL":    "http://127.0.0.1:0",
			"SESSION_SECRET": "test-session-secret",
			"CSRF_SECRET":    "test-csrf-secret",
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
