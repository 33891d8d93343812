// Package archive copies the decision-store JSONL hierarchy to blob storage
// for long-term compliance retention (operator-invoked via `hookctl sync`).
// This is strictly additive: the JSONL files remain the live store,
// archival only copies them out. One Archiver interface, three backends,
// each grounded on the matching connector in the example pack (trimmed to
// the single "put this file's bytes at this key" operation this domain
// needs, dropping the full connector lifecycle/capability machinery those
// connectors carry for their own multi-tenant marketplace).
package archive

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"permgate/internal/obslog"
	"permgate/internal/pgerr"
)

// Archiver uploads a single object's bytes to a key in durable blob storage.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) error
}

// SyncDir walks root and uploads every regular file to archiver, prefixing
// each object key with prefix, returning the number of files archived.
// Failures on one file do not stop the walk; the first error is returned
// after every file has been attempted.
func SyncDir(ctx context.Context, archiver Archiver, root, prefix string) (int, error) {
	log := obslog.New("archive")
	count := 0
	var firstErr error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.ErrorWithErr("", "read file for archival", err, map[string]interface{}{"path": path})
			return nil
		}
		key := filepath.ToSlash(filepath.Join(prefix, rel))
		if err := archiver.Put(ctx, key, data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.ErrorWithErr("", "archive file", err, map[string]interface{}{"path": path, "key": key})
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, pgerr.Wrap(pgerr.IO, "walk decision store for archival", err)
	}
	if firstErr != nil {
		return count, pgerr.Wrap(pgerr.IO, "one or more files failed to archive", firstErr)
	}
	return count, nil
}
