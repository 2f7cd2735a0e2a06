// Package filewatch cancels contexts on changes of files, for restarting on config updates.
package filewatch

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// changes which cancel contexts. chmod only is ignored.
const changes = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// UntilModified returns a context that is canceled
// when one of target files (or files in target directories) is written, created, removed or renamed.
//
// The cause of cancel is available with context.Cause.
//
// # Args
//
// - ctx: parent context.
//
// - targets ...string: paths to be watched.
//
// # Returns
//
// - context.Context: context canceled on modification.
//
// - context.CancelFunc: stops watching.
//
// - error: when it fails to start watching. The context and the cancel function are nil then.
func UntilModified(ctx context.Context, targets ...string) (context.Context, context.CancelFunc, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, f := range targets {
		if err := w.Add(f); err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("cannot watch %s: %w", f, err)
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("watching files is broken: %w", err))
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(changes) {
					continue
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op))
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
