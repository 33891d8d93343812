package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"permgate/internal/pgerr"
)

// RegistrationEntry is one on-disk registration record, keyed by session id
// in the registration file.
type RegistrationEntry struct {
	Role         string    `json:"role"`
	Task         string    `json:"task,omitempty"`
	PromptHash   string    `json:"prompt_hash,omitempty"`
	PromptPath   string    `json:"prompt_path,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	RegisteredBy string    `json:"registered_by,omitempty"`
}

// readRegistrationFile reads the JSON object mapping session id -> entry.
// A missing or empty file is treated as an empty map.
func readRegistrationFile(path string) (map[string]RegistrationEntry, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]RegistrationEntry{}, nil
	}
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "read registration file", err).WithContext("path", path)
	}
	if strings.TrimSpace(string(b)) == "" {
		return map[string]RegistrationEntry{}, nil
	}
	var entries map[string]RegistrationEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "parse registration file", err).WithContext("path", path)
	}
	return entries, nil
}

// writeRegistrationEntry read-modify-writes the registration file under an
// advisory flock on a sibling .lock file, then rewrites atomically
// (temp + fsync + rename) with owner-only permissions.
func writeRegistrationEntry(path, sessionID string, entry RegistrationEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return pgerr.Wrap(pgerr.IO, "create registration dir", err)
	}

	unlock, err := acquireFileLock(path)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := readRegistrationFile(path)
	if err != nil {
		return err
	}
	entries[sessionID] = entry
	return atomicWriteJSON(path, entries)
}

// removeRegistrationEntry deletes a session's registration entry, if present.
func removeRegistrationEntry(path, sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return pgerr.Wrap(pgerr.IO, "create registration dir", err)
	}

	unlock, err := acquireFileLock(path)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := readRegistrationFile(path)
	if err != nil {
		return err
	}
	delete(entries, sessionID)
	return atomicWriteJSON(path, entries)
}

// readExclusionFile reads the JSON array of disabled session ids.
func readExclusionFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "read exclusion file", err).WithContext("path", path)
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	var exclusions []string
	if err := json.Unmarshal(b, &exclusions); err != nil {
		return nil, pgerr.Wrap(pgerr.Serialization, "parse exclusion file", err).WithContext("path", path)
	}
	return exclusions, nil
}

func writeExclusionFile(path string, exclusions []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return pgerr.Wrap(pgerr.IO, "create exclusion dir", err)
	}
	if exclusions == nil {
		exclusions = []string{}
	}
	return atomicWriteJSON(path, exclusions)
}

// atomicWriteJSON marshals v, writes it to a sibling temp file, fsyncs, sets
// owner-only permissions, and renames it into place.
func atomicWriteJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pgerr.Wrap(pgerr.Serialization, "marshal json for atomic write", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return pgerr.Wrap(pgerr.IO, "create temp file", err).WithContext("path", tmpPath)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return pgerr.Wrap(pgerr.IO, "write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pgerr.Wrap(pgerr.IO, "fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		return pgerr.Wrap(pgerr.IO, "close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return pgerr.Wrap(pgerr.IO, "chmod temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pgerr.Wrap(pgerr.IO, "rename temp file into place", err).WithContext("path", path)
	}
	return nil
}

// acquireFileLock takes an exclusive advisory flock on path's sibling
// ".lock" file for the duration of a read-modify-write, returning an
// unlock function. The lock file itself is never removed, matching the
// original's flock-on-persistent-sidecar pattern.
func acquireFileLock(path string) (func(), error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.IO, "open lock file", err).WithContext("path", lockPath)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, pgerr.Wrap(pgerr.IO, "acquire flock", err).WithContext("path", lockPath)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
