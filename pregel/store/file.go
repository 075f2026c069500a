package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// FileStore is a filesystem implementation of Store[S].
//
// Layout: one directory per workflow under the root, one file per
// checkpoint named checkpoint_00042.json (or .json.zst with compression
// enabled). Writes go to a temporary sibling, are fsynced, then renamed
// into place, so a crash never leaves a partially written checkpoint
// visible.
//
// Designed for:
//   - Single-process workflows needing durability without a database
//   - Local development and debugging (checkpoints are plain JSON)
//
// Workflow IDs are sanitized into directory names; IDs that differ only in
// filesystem-unsafe characters collide.
type FileStore[S any] struct {
	root     string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// FileOption configures a FileStore.
type FileOption func(*fileOptions)

type fileOptions struct {
	compress bool
}

// WithCompression enables zstd compression of checkpoint files.
func WithCompression() FileOption {
	return func(o *fileOptions) { o.compress = true }
}

// NewFileStore creates a file-backed checkpoint store rooted at dir,
// creating it if necessary.
//
// Example:
//
//	st, err := store.NewFileStore[MyState]("/var/lib/app/checkpoints",
//	    store.WithCompression())
func NewFileStore[S any](dir string, opts ...FileOption) (*FileStore[S], error) {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint root: %w", err)
	}

	fs := &FileStore[S]{root: dir, compress: o.compress}

	if o.compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		fs.enc = enc
	}
	// The decoder is always available so a store opened without
	// compression can still read .zst files written earlier.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	fs.dec = dec

	return fs, nil
}

// Root returns the checkpoint root directory.
func (f *FileStore[S]) Root() string { return f.root }

// Save writes the checkpoint atomically: temp file, fsync, rename.
func (f *FileStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	dir := f.workflowDir(cp.WorkflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workflow dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if f.compress {
		data = f.enc.EncodeAll(data, nil)
	}

	final := filepath.Join(dir, f.fileName(cp.Superstep))
	tmp := final + ".tmp"

	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}

	// A .json and a .json.zst for the same superstep would shadow each
	// other; remove the variant we did not just write.
	other := filepath.Join(dir, f.otherFileName(cp.Superstep))
	os.Remove(other)
	return nil
}

// Load reads and decodes one checkpoint.
func (f *FileStore[S]) Load(ctx context.Context, workflowID string, superstep int) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	dir := f.workflowDir(workflowID)

	for _, name := range []string{plainFileName(superstep), compressedFileName(superstep)} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		if strings.HasSuffix(name, ".zst") {
			data, err = f.dec.DecodeAll(data, nil)
			if err != nil {
				return zero, fmt.Errorf("failed to decompress checkpoint: %w", err)
			}
		}
		var cp Checkpoint[S]
		if err := json.Unmarshal(data, &cp); err != nil {
			return zero, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		return cp, nil
	}

	return zero, fmt.Errorf("workflow %s superstep %d: %w", workflowID, superstep, ErrNotFound)
}

// Latest loads the checkpoint with the highest superstep.
func (f *FileStore[S]) Latest(ctx context.Context, workflowID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	steps, err := f.List(ctx, workflowID)
	if err != nil {
		return zero, err
	}
	if len(steps) == 0 {
		return zero, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return f.Load(ctx, workflowID, steps[len(steps)-1])
}

// List returns the stored supersteps in ascending order.
func (f *FileStore[S]) List(ctx context.Context, workflowID string) ([]int, error) {
	entries, err := os.ReadDir(f.workflowDir(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	seen := make(map[int]bool)
	var steps []int
	for _, entry := range entries {
		step, ok := parseSuperstep(entry.Name())
		if !ok || seen[step] {
			continue
		}
		seen[step] = true
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// Delete removes one checkpoint. Missing files are ignored.
func (f *FileStore[S]) Delete(ctx context.Context, workflowID string, superstep int) error {
	dir := f.workflowDir(workflowID)
	for _, name := range []string{plainFileName(superstep), compressedFileName(superstep)} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	}
	return nil
}

func (f *FileStore[S]) workflowDir(workflowID string) string {
	return filepath.Join(f.root, sanitizeID(workflowID))
}

func (f *FileStore[S]) fileName(superstep int) string {
	if f.compress {
		return compressedFileName(superstep)
	}
	return plainFileName(superstep)
}

func (f *FileStore[S]) otherFileName(superstep int) string {
	if f.compress {
		return plainFileName(superstep)
	}
	return compressedFileName(superstep)
}

func plainFileName(superstep int) string {
	return fmt.Sprintf("checkpoint_%05d.json", superstep)
}

func compressedFileName(superstep int) string {
	return plainFileName(superstep) + ".zst"
}

// parseSuperstep extracts the superstep from a checkpoint file name.
func parseSuperstep(name string) (int, bool) {
	name = strings.TrimSuffix(name, ".zst")
	if !strings.HasPrefix(name, "checkpoint_") || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint_"), ".json")
	step, err := strconv.Atoi(num)
	if err != nil || step < 0 {
		return 0, false
	}
	return step, true
}

// sanitizeID maps a workflow ID to a safe directory name.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
