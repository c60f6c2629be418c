package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/agentchain/agentchain/internal/domain/content"
)

const digestFile = ".digest"

// FilesystemStore keeps asset content on local disk, one directory per
// content ref. The bundle digest is computed at write time and persisted next
// to the files so it survives restarts.
type FilesystemStore struct {
	root   string
	logger zerolog.Logger
}

func NewFilesystemStore(root string, logger zerolog.Logger) (*FilesystemStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob store root: %w", err)
	}
	return &FilesystemStore{
		root:   root,
		logger: logger.With().Str("service", "blobstore").Logger(),
	}, nil
}

// Put writes the bundle under ref and returns file count, byte total and the
// blake2b digest over the bundle content.
func (s *FilesystemStore) Put(ctx context.Context, ref string, files []content.File) (*content.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("bundle is empty")
	}
	dir, err := s.refDir(ref)
	if err != nil {
		return nil, err
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, f := range files {
		rel := filepath.Clean(f.RelativePath)
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return nil, fmt.Errorf("invalid file path: %s", f.RelativePath)
		}
		dst := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
			return nil, err
		}
		hasher.Write([]byte(rel))
		hasher.Write(f.Data)
		total += int64(len(f.Data))
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if err := os.WriteFile(filepath.Join(dir, digestFile), []byte(digest), 0o644); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("ref", ref).
		Int("files", len(files)).
		Int64("bytes", total).
		Msg("bundle stored")
	return &content.PutResult{Files: len(files), Bytes: total, Digest: digest}, nil
}

// Digest returns the persisted bundle digest.
func (s *FilesystemStore) Digest(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.refDir(ref)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, digestFile))
	if err != nil {
		return "", fmt.Errorf("digest for %s: %w", ref, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether a ref has stored content.
func (s *FilesystemStore) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.refDir(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// List returns the relative paths stored under a ref, sorted.
func (s *FilesystemStore) List(ctx context.Context, ref string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.refDir(ref)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == digestFile {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *FilesystemStore) refDir(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("content ref is required")
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid content ref: %s", ref)
	}
	return filepath.Join(s.root, clean), nil
}
