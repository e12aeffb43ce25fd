// Package guard flags the process as running under test so that binaries
// linked into tests skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FACTURIA_TEST_MODE") == "" {
			_ = os.Setenv("FACTURIA_TEST_MODE", "1")
		}
	})
}
