package gctune

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the tuning file on OS-native change notifications and
// delivers validated snapshots. Invalid revisions are reported on the
// error channel and the previous snapshot stays in effect.
type Watcher struct {
	path string
	w    *fsnotify.Watcher
	snC  chan Snapshot
	erC  chan error
}

// NewWatcher starts watching the tuning file's directory. Watching the
// directory rather than the file keeps rename-based atomic rewrites
// visible.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()

		return nil, err
	}

	tw := &Watcher{
		path: path,
		w:    w,
		snC:  make(chan Snapshot, 16),
		erC:  make(chan error, 1),
	}
	go tw.loop()

	return tw, nil
}

func (tw *Watcher) loop() {
	for {
		select {
		case ev, ok := <-tw.w.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != filepath.Clean(tw.path) {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			snap, err := Load(tw.path)
			if err != nil {
				select {
				case tw.erC <- err:
				default:
				}

				continue
			}

			tw.snC <- *snap
		case err, ok := <-tw.w.Errors:
			if !ok {
				return
			}

			select {
			case tw.erC <- err:
			default:
			}
		}
	}
}

// Snapshots delivers each validated revision of the tuning file.
func (tw *Watcher) Snapshots() <-chan Snapshot { return tw.snC }

// Errors delivers load and watch failures.
func (tw *Watcher) Errors() <-chan error { return tw.erC }

// Close stops the watcher.
func (tw *Watcher) Close() error { return tw.w.Close() }
