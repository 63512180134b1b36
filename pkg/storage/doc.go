// Package storage persists scraped records as JSON files on disk.
//
// The Manager type is the primary interface for storage operations. It keeps
// an in-memory set of stored record keys for fast duplicate detection,
// rebuilt from the output directory on initialization, and writes every
// record atomically using a temporary file and rename.
//
// Usage:
//
//	manager, err := storage.NewManager("output_directory")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !manager.IsSaved("twitter", "12345") {
//	    saved, err := manager.SavePost(post)
//	    if err != nil {
//	        log.Printf("Failed to save post: %v", err)
//	    }
//	    _ = saved
//	}
package storage
