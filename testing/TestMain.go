// Package testing switches the process into test mode when imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("REWEARIFY_TEST_MODE", "1")
		if os.Getenv("AUTH_TOKEN_SECRET") == "" {
			_ = os.Setenv("AUTH_TOKEN_SECRET", "test-token-secret")
		}
		if os.Getenv("SESSION_SECRET") == "" {
			_ = os.Setenv("SESSION_SECRET", "test-session-secret")
		}
		if os.Getenv("SMTP_HOST") == "" {
			_ = os.Setenv("SMTP_HOST", "127.0.0.1")
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
