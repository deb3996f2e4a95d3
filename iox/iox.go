// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"io"

	"go.uber.org/multierr"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(adapter))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseAll closes cs in reverse order, like stacked defers, and returns
// every close error combined. Nil closers are skipped.
func CloseAll(cs ...io.Closer) error {
	var err error
	for i := len(cs) - 1; i >= 0; i-- {
		if cs[i] == nil {
			continue
		}
		err = multierr.Append(err, cs[i].Close())
	}
	return err
}
