// Package watcher notices edits to searchschema configuration files so a
// long-running `searchschema serve` can rerun schema startup with the new
// shard, replica and retention settings.
//
// fsnotify watches the parent directories of the configured files. Where
// fsnotify is unavailable the watcher polls the files instead. Bursts of
// editor writes are debounced into a single batch.
//
//	w, err := watcher.New(watcher.DefaultOptions(), paths...)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx)
//
//	for batch := range w.Events() {
//	    // reload config
//	}
package watcher
