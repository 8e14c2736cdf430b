// Package watcher keeps the index in step with a notebook directory.
//
// HybridWatcher reports debounced batches of file events, using fsnotify
// where available and polling otherwise. Syncer turns those batches into
// per-note Reindex and Delete calls on the index coordinator:
//
//	s, err := watcher.NewSyncer(coord, open)
//	w, err := watcher.NewHybridWatcher(s, watcher.Options{Debounce: time.Second})
//	go func() { _ = w.Start(ctx, root) }()
//	s.Run(ctx, w)
//
// Events for the same path inside the debounce window are coalesced, so an
// editor's write-rename-write burst becomes one reindex.
package watcher
