// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package retention

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/castellan/castellan/internal/audit"
)

const (
	archiveFormatVersion = 1

	entriesFileName  = "entries.json"
	metadataFileName = "archive-metadata.json"
)

// ArchiveRecord describes one written archive. The checksum covers the
// entries payload and must validate before any restore is accepted.
type ArchiveRecord struct {
	Policy        string    `json:"policy"`
	Path          string    `json:"path"`
	Checksum      string    `json:"checksum"`
	EntryCount    int       `json:"entry_count"`
	CreatedAt     time.Time `json:"created_at"`
	FormatVersion int       `json:"format_version"`
}

// archiveWriters layers file -> gzip -> tar, closing in reverse order.
type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func setupArchiveWriters(file *os.File) *archiveWriters {
	aw := &archiveWriters{closers: []io.Closer{file}}
	gzWriter := gzip.NewWriter(file)
	aw.closers = append(aw.closers, gzWriter)
	aw.tarWriter = tar.NewWriter(gzWriter)
	aw.closers = append(aw.closers, aw.tarWriter)
	return aw
}

// archiveFileName builds audit-<policy>-<timestamp>-<id>.tar.gz.
func archiveFileName(policy string, at time.Time) string {
	id := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("audit-%s-%s-%s.tar.gz", policy, at.Format("20060102-150405"), id)
}

// writeArchive writes the entries and metadata into a new archive file at
// dir and returns its record. The file is written to a temporary name,
// synced, then renamed into place so a partial write never looks like a
// valid archive.
func writeArchive(dir, policy string, entries []audit.Entry, at time.Time) (*ArchiveRecord, error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive entries: %w", err)
	}

	sum := sha256.Sum256(payload)
	record := &ArchiveRecord{
		Policy:        policy,
		Checksum:      hex.EncodeToString(sum[:]),
		EntryCount:    len(entries),
		CreatedAt:     at.UTC(),
		FormatVersion: archiveFormatVersion,
	}

	finalPath := filepath.Join(dir, archiveFileName(policy, at))
	tmpPath := finalPath + ".tmp"

	if err := writeArchiveFile(tmpPath, payload, record); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	record.Path = finalPath
	return record, nil
}

func writeArchiveFile(path string, payload []byte, record *ArchiveRecord) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	aw := setupArchiveWriters(file)
	defer func() {
		if closeErr := aw.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close archive writers: %w", closeErr)
		}
	}()

	if err = addTarFile(aw.tarWriter, entriesFileName, payload, record.CreatedAt); err != nil {
		return err
	}

	meta, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode archive metadata: %w", err)
	}
	if err = addTarFile(aw.tarWriter, metadataFileName, meta, record.CreatedAt); err != nil {
		return err
	}

	// Flush the tar and gzip layers before syncing the file.
	if err = aw.tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	aw.closers = aw.closers[:len(aw.closers)-1]
	if err = aw.closers[len(aw.closers)-1].Close(); err != nil {
		return fmt.Errorf("failed to flush compression: %w", err)
	}
	aw.closers = aw.closers[:len(aw.closers)-1]

	if err = file.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	return nil
}

func addTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0o640,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
