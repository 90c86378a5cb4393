// Package source feeds policy documents into the enforcement engine.
//
// A Source lists documents: FileSource reads files and directories,
// GitSource reads a clone of a Git repository, MemorySource holds uploaded
// text. A Syncer applies the documents of its sources to an engine,
// reloading only documents whose content changed and removing documents
// that went away. Watcher triggers a sync when files change on disk.
package source
