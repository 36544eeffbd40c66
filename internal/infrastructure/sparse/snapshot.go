package sparse

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// snapshot holds the tokenized corpus and passage payload. The scoring tables
// are cheap to recompute, so they are rebuilt on load rather than serialized.
// Embeddings are owned by the dense store and stripped before writing.
type snapshot struct {
	Passages  []domain.Passage
	Tokenized [][]string
}

// Persist writes the current segment to path so a restart does not have to
// re-tokenize the corpus. Written to a temp file and renamed so a crashed
// writer never leaves a half-written snapshot behind.
func (ix *Index) Persist(path string) error {
	seg := ix.current.Load()
	if seg == nil {
		return domain.WrapError(domain.ErrIndexNotBuilt, "persist sparse snapshot", fmt.Errorf("nothing to persist"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	stripped := make([]domain.Passage, len(seg.passages))
	copy(stripped, seg.passages)
	for i := range stripped {
		stripped[i].Embedding = nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snapshot{Passages: stripped, Tokenized: seg.tokenized}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	slog.Info("sparse_snapshot_saved", "path", path, "passages", len(seg.passages))
	return nil
}

// Load restores a snapshot if one exists. A missing snapshot returns
// (false, nil): the caller falls back to rebuilding from the corpus store.
func (ix *Index) Load(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(snap.Passages) == 0 || len(snap.Passages) != len(snap.Tokenized) {
		return false, fmt.Errorf("snapshot corrupt: %d passages, %d token lists", len(snap.Passages), len(snap.Tokenized))
	}

	ix.current.Store(newSegment(snap.Passages, snap.Tokenized))
	slog.Info("sparse_snapshot_loaded", "path", path, "passages", len(snap.Passages))
	return true, nil
}
