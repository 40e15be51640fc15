package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/oklog/ulid/v2"

	"github.com/rshade/scoutcache/internal/logging"
)

// File layout constants.
const (
	// cacheFileExtension is the file extension used for cache entries.
	cacheFileExtension = ".cache"

	// tempFileExtension marks in-flight writes. Such files are never listed.
	tempFileExtension = ".tmp"

	// formatMarkerName is the file recording the on-disk format version.
	formatMarkerName = ".format"

	// formatVersion is the current on-disk format. A different major version
	// found in an existing directory causes its entries to be purged.
	formatVersion = "2.0.0"

	cacheDirPerm  = 0o750
	cacheFilePerm = 0o600

	// readDirChunk bounds how many directory entries are held in memory
	// while iterating.
	readDirChunk = 256
)

// errDirectoryUnreadable marks failures listing the cache directory as a
// whole, as opposed to problems with a single entry.
var errDirectoryUnreadable = errors.New("failed to read cache directory")

// EntryInfo describes one entry file found on disk.
type EntryInfo struct {
	Key     string
	Path    string
	Size    int64
	ModTime time.Time
}

// FileStore maps cache keys to files in one directory. It owns the
// directory's file set.
//
// Writes go through a uniquely named temp file and an atomic rename, so
// readers never observe a partially written entry. Concurrent writers to
// the same key resolve as last-writer-wins.
type FileStore struct {
	// directory is the cache directory path.
	directory string

	// codec encodes and decodes entry files.
	codec *Codec
}

// OpenFileStore opens (creating if needed) the cache directory. It fails
// with ErrConfigInvalid if the directory cannot be created or written.
func OpenFileStore(ctx context.Context, directory string, codec *Codec) (*FileStore, error) {
	if strings.TrimSpace(directory) == "" {
		return nil, fmt.Errorf("%w: directory cannot be empty", ErrConfigInvalid)
	}
	if codec == nil {
		codec = NewCodec(DefaultCompression)
	}

	if err := os.MkdirAll(directory, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %w", ErrConfigInvalid, err)
	}

	probe, err := os.CreateTemp(directory, ".probe-*"+tempFileExtension)
	if err != nil {
		return nil, fmt.Errorf("%w: cache directory %s is not writable: %w", ErrConfigInvalid, directory, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	s := &FileStore{
		directory: directory,
		codec:     codec,
	}

	if err := s.checkFormat(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Directory returns the cache directory path.
func (s *FileStore) Directory() string {
	return s.directory
}

// Path converts a cache key to a file path.
// The key is sanitized to ensure filesystem safety.
func (s *FileStore) Path(key string) string {
	safeKey := strings.ReplaceAll(key, "/", "_")
	safeKey = strings.ReplaceAll(safeKey, "\\", "_")
	safeKey = strings.ReplaceAll(safeKey, ":", "_")
	return filepath.Join(s.directory, safeKey+cacheFileExtension)
}

// Read loads the entry for key.
// Returns ErrNotFound if the entry doesn't exist and an error wrapping
// ErrCorruptEntry if it cannot be decoded.
func (s *FileStore) Read(key string) (*Entry, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	filePath := s.Path(key)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	entry, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}

	return &entry, nil
}

// ReadStoredAt returns the store time of the entry for key, reading only
// the fixed-width header. The body is neither read nor validated.
func (s *FileStore) ReadStoredAt(key string) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}

	filePath := s.Path(key)
	//nolint:gosec // path is built from a sanitized key inside the cache directory.
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read cache file: %w", err)
	}

	storedAt, err := s.codec.DecodeStoredAt(header[:n])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}
	return storedAt, nil
}

// Write replaces the entry for key and returns the number of bytes
// persisted.
func (s *FileStore) Write(key string, entry Entry) (int64, error) {
	if key == "" {
		return 0, ErrInvalidKey
	}

	data, err := s.codec.Encode(entry)
	if err != nil {
		return 0, err
	}

	if err := s.writeAtomic(s.Path(key), data); err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

// Delete removes the entry for key.
// Returns nil if the entry doesn't exist (idempotent).
func (s *FileStore) Delete(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}

	return nil
}

// Entries returns a lazy sequence over the entries currently on disk.
// Each call starts a fresh directory scan. Entries created or removed
// during iteration may or may not be observed.
func (s *FileStore) Entries() iter.Seq2[EntryInfo, error] {
	return func(yield func(EntryInfo, error) bool) {
		dir, err := os.Open(s.directory)
		if err != nil {
			yield(EntryInfo{}, fmt.Errorf("%w: %w", errDirectoryUnreadable, err))
			return
		}
		defer dir.Close()

		for {
			batch, readErr := dir.ReadDir(readDirChunk)
			for _, dirEntry := range batch {
				if !isEntryFile(dirEntry) {
					continue
				}

				info, infoErr := dirEntry.Info()
				if infoErr != nil {
					if errors.Is(infoErr, fs.ErrNotExist) {
						continue // removed since the directory was read
					}
					if !yield(EntryInfo{}, fmt.Errorf("failed to stat %s: %w", dirEntry.Name(), infoErr)) {
						return
					}
					continue
				}

				if !yield(EntryInfo{
					Key:     strings.TrimSuffix(dirEntry.Name(), cacheFileExtension),
					Path:    filepath.Join(s.directory, dirEntry.Name()),
					Size:    info.Size(),
					ModTime: info.ModTime(),
				}, nil) {
					return
				}
			}

			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					yield(EntryInfo{}, fmt.Errorf("%w: %w", errDirectoryUnreadable, readErr))
				}
				return
			}
		}
	}
}

// TotalSize returns the total size of all entries in bytes.
func (s *FileStore) TotalSize() (int64, error) {
	var totalSize int64
	for info, err := range s.Entries() {
		if err != nil {
			return 0, err
		}
		totalSize += info.Size
	}
	return totalSize, nil
}

// Count returns the number of entries (including expired ones).
func (s *FileStore) Count() (int, error) {
	count := 0
	for _, err := range s.Entries() {
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// Clear removes all entries and leftover temp files from the store.
func (s *FileStore) Clear() (int, error) {
	return s.removeMatching(func(name string) bool {
		return strings.HasSuffix(name, cacheFileExtension) || strings.HasSuffix(name, tempFileExtension)
	})
}

func (s *FileStore) removeMatching(match func(name string) bool) (int, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}

		filePath := filepath.Join(s.directory, entry.Name())
		if removeErr := os.Remove(filePath); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove cache file %s: %w", entry.Name(), removeErr)
		}
		removed++
	}

	return removed, nil
}

// writeAtomic writes data next to target and renames it into place.
func (s *FileStore) writeAtomic(target string, data []byte) error {
	tempPath := filepath.Join(s.directory,
		"."+filepath.Base(target)+"."+ulid.Make().String()+tempFileExtension)

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, cacheFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on error
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// checkFormat reads the directory's format marker. A missing marker is
// written; an unreadable one or a different major version purges every
// entry before the current marker is written.
func (s *FileStore) checkFormat(ctx context.Context) error {
	current := semver.MustParse(formatVersion)
	markerPath := filepath.Join(s.directory, formatMarkerName)

	data, err := os.ReadFile(markerPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s.writeAtomic(markerPath, []byte(formatVersion+"\n"))
	case err != nil:
		return fmt.Errorf("failed to read format marker: %w", err)
	}

	found, parseErr := semver.NewVersion(strings.TrimSpace(string(data)))
	if parseErr == nil && found.Major() == current.Major() {
		return nil
	}

	logger := logging.FromContext(ctx)
	event := logger.Warn().
		Str("component", "cache").
		Str("operation", "check_format").
		Str("directory", s.directory).
		Str("want", formatVersion)
	if parseErr != nil {
		event = event.Err(parseErr)
	} else {
		event = event.Str("found", found.String())
	}
	event.Msg("incompatible cache format, purging entries")

	if _, err := s.Clear(); err != nil {
		return err
	}
	return s.writeAtomic(markerPath, []byte(formatVersion+"\n"))
}

// isEntryFile reports whether a directory entry is a committed cache entry.
func isEntryFile(d fs.DirEntry) bool {
	name := d.Name()
	return !d.IsDir() &&
		!strings.HasPrefix(name, ".") &&
		filepath.Ext(name) == cacheFileExtension
}
