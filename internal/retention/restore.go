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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/castellan/castellan/internal/audit"
)

// ErrChecksumMismatch is returned when an archive's payload does not match
// the checksum in its metadata. The restore aborts entirely.
var ErrChecksumMismatch = errors.New("archive checksum mismatch")

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Restored int            `json:"restored"`
	Metadata *ArchiveRecord `json:"metadata"`
}

// readArchive extracts and verifies an archive file. The payload checksum is
// verified against the metadata before any entry is decoded.
func readArchive(path string) ([]audit.Entry, *ArchiveRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read archive compression: %w", err)
	}
	defer gzReader.Close()

	var payload []byte
	var record *ArchiveRecord

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read archive: %w", err)
		}

		switch header.Name {
		case entriesFileName:
			payload, err = io.ReadAll(tarReader)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read archive entries: %w", err)
			}
		case metadataFileName:
			data, err := io.ReadAll(tarReader)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read archive metadata: %w", err)
			}
			record = &ArchiveRecord{}
			if err := json.Unmarshal(data, record); err != nil {
				return nil, nil, fmt.Errorf("failed to decode archive metadata: %w", err)
			}
		}
	}

	if payload == nil {
		return nil, nil, fmt.Errorf("archive %s has no entries file", path)
	}
	if record == nil {
		return nil, nil, fmt.Errorf("archive %s has no metadata file", path)
	}

	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != record.Checksum {
		return nil, nil, fmt.Errorf("archive %s: %w", path, ErrChecksumMismatch)
	}

	var entries []audit.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, nil, fmt.Errorf("failed to decode archive entries: %w", err)
	}
	if len(entries) != record.EntryCount {
		return nil, nil, fmt.Errorf("archive %s: entry count %d does not match metadata %d",
			path, len(entries), record.EntryCount)
	}
	return entries, record, nil
}
