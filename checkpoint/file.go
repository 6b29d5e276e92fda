package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/agentloop/core"
)

// FileStore implements core.CheckpointStore using the OS file system. Each
// conversation is one JSON document in dir. Writes go to a temporary file
// that is renamed over the target, so a crash never leaves a torn checkpoint.
type FileStore struct {
	dir string // The directory checkpoint files live in
}

// NewFileStore creates a file system checkpoint store, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// Load returns the checkpoint stored for conversationID, or nil if there is nothing stored.
func (s *FileStore) Load(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(s.path(conversationID))
	if errors.Is(err, os.ErrNotExist) {
		// The file doesn't exist so nothing is stored for this conversation
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp core.Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %q: %w", conversationID, err)
	}

	return &cp, nil
}

// Save writes cp atomically, replacing any previous checkpoint for its id.
func (s *FileStore) Save(ctx context.Context, cp *core.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := Validate(cp); err != nil {
		return err
	}

	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path(cp.ConversationID)); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	return nil
}

// Delete removes the checkpoint for conversationID. Deleting a missing id is not an error.
func (s *FileStore) Delete(ctx context.Context, conversationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(conversationID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	return nil
}

// maxEncodedName keeps file names well below the usual 255 byte NAME_MAX.
const maxEncodedName = 200

// path maps an arbitrary conversation id onto a safe, collision free file
// name. Ids too long to encode are hashed; the ".sha256" infix never occurs
// in a base64url name.
func (s *FileStore) path(conversationID string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(conversationID))
	if len(name) > maxEncodedName {
		sum := sha256.Sum256([]byte(conversationID))
		name = hex.EncodeToString(sum[:]) + ".sha256"
	}

	return filepath.Join(s.dir, name+".json")
}

var _ core.CheckpointStore = (*FileStore)(nil)
