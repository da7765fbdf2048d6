package isolator

import (
	"fmt"
	"os"
	"time"
)

// acquireLock takes an exclusive file lock at path using O_EXCL create,
// spinning with backoff until it succeeds or the deadline passes. The
// returned release func removes the lock file. This is the "gated by a
// lock file" mechanism around one-shot isolated environment init: the
// first caller to create the file wins, everyone else waits for it to be
// removed.
func acquireLock(path string) (release func(), err error) {
	deadline := time.Now().Add(60 * time.Second)
	backoff := 50 * time.Millisecond

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			pid := os.Getpid()
			fmt.Fprintf(f, "%d\n", pid)
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock %q", path)
		}
		time.Sleep(backoff)
		if backoff < time.Second {
			backoff *= 2
		}
	}
}
