// Package checkpoint persists run progress so an interrupted concatenation can
// resume without rereading completed work. The state file is small JSON,
// replaced atomically (write temp, fsync, rename) so a crash never leaves a
// torn checkpoint behind.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version guards the state file layout. Bump on incompatible changes.
const Version = 1

// Checkpoint records the durable watermark of a run.
//
// Seq/RowsDone locate the read position: every input before Seq is fully
// consumed, and RowsDone rows of input Seq have been written and flushed.
// OutIndex/OutBytes/OutRows describe the active output file at that moment;
// OutFinalized marks it complete (resume starts a fresh file at OutIndex).
type Checkpoint struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`

	Seq      int   `json:"seq"`
	RowsDone int64 `json:"rows_done"`

	OutIndex     int   `json:"out_index"`
	OutBytes     int64 `json:"out_bytes"`
	OutRows      int64 `json:"out_rows"`
	OutFinalized bool  `json:"out_finalized"`

	UpdatedAt time.Time `json:"updated_at"`
}

// CorruptError reports an unreadable or structurally invalid state file.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// MismatchError reports a checkpoint that belongs to a different plan.
type MismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checkpoint %s was recorded for a different run (fingerprint %s, current plan %s); inputs or settings changed since the interrupted run",
		e.Path, e.Got, e.Want)
}

// Store reads and writes the checkpoint file at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

// Load reads the checkpoint. A missing file returns (nil, nil); a present but
// unparsable file is a CorruptError.
func (s *Store) Load() (*Checkpoint, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if cp.Version != Version {
		return nil, &CorruptError{Path: s.path,
			Err: fmt.Errorf("unsupported state version %d (want %d)", cp.Version, Version)}
	}
	if cp.Fingerprint == "" || cp.Seq < 0 || cp.RowsDone < 0 || cp.OutIndex < 0 {
		return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("invalid watermark fields")}
	}
	return &cp, nil
}

// Validate checks that a loaded checkpoint belongs to the given plan
// fingerprint.
func (s *Store) Validate(cp *Checkpoint, fingerprint string) error {
	if cp.Fingerprint != fingerprint {
		return &MismatchError{Path: s.path, Want: fingerprint, Got: cp.Fingerprint}
	}
	return nil
}

// Save atomically replaces the state file. The temp file is synced before the
// rename and the directory after, so the new state is durable once Save
// returns.
func (s *Store) Save(cp *Checkpoint) error {
	cp.Version = Version
	cp.UpdatedAt = time.Now().UTC()

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return syncDir(dir)
}

// Clear removes the state file after a successful run.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil // best effort; some filesystems refuse directory opens
	}
	defer d.Close()
	d.Sync()
	return nil
}
