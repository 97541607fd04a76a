// Package fs persists per-scope stream cursors as JSON files.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/chatship-io/chatship/internal/domain"
)

// CursorState is the persisted stream position for one scope.
type CursorState struct {
	Scope      string `json:"scope"`
	LastOffset uint64 `json:"last_offset"`
	VersionTag string `json:"version_tag,omitempty"`
}

// CursorFileRepository stores one cursor file per scope under a directory.
type CursorFileRepository struct {
	dir string
}

// NewCursorFileRepository creates a repository rooted at dir.
func NewCursorFileRepository(dir string) *CursorFileRepository {
	return &CursorFileRepository{dir: dir}
}

// Load retrieves the saved cursor for scope.
// Returns a zero cursor and nil error if no cursor file exists.
func (r *CursorFileRepository) Load(ctx context.Context, scope domain.ScopeFilter) (CursorState, error) {
	data, err := os.ReadFile(r.Path(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return CursorState{Scope: scope.Key()}, nil
		}
		return CursorState{}, err
	}

	var state CursorState
	if err := json.Unmarshal(data, &state); err != nil {
		return CursorState{}, err
	}
	return state, nil
}

// Save persists the cursor atomically.
// Uses atomic write (write to temp file, then rename) to prevent corruption.
func (r *CursorFileRepository) Save(ctx context.Context, state CursorState) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := filepath.Join(r.dir, fileNameFor(state.Scope))
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the cursor file for scope.
func (r *CursorFileRepository) Path(scope domain.ScopeFilter) string {
	return filepath.Join(r.dir, fileNameFor(scope.Key()))
}

// fileNameFor hashes the scope key so peer identifiers never have to be
// sanitized for the filesystem.
func fileNameFor(scopeKey string) string {
	sum := sha256.Sum256([]byte(scopeKey))
	return "cursor-" + hex.EncodeToString(sum[:8]) + ".json"
}
