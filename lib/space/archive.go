// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package space

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/haowjy/meridian-channel/lib/state"
)

// archiveSuffix marks compressed run artifacts. The original file is
// removed after a successful compress-and-rename, never before.
const archiveSuffix = ".zst"

// archivableNames are the per-run artifacts worth compressing when a
// space closes. Logs are text-heavy JSON, where zstd earns its keep;
// report.md stays uncompressed because it is the artifact humans open
// directly.
var archivableNames = map[string]bool{
	"output.jsonl": true,
	"stderr.log":   true,
}

// ArchiveRuns compresses the bulky per-run artifacts of one space with
// zstd. Called from `space close --archive`; closed spaces are
// retained for audit, so shrinking their logs matters more than read
// latency. Returns the number of files compressed.
func ArchiveRuns(paths state.SpacePaths) (int, error) {
	entries, err := os.ReadDir(paths.RunsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scanning run dirs: %w", err)
	}

	compressed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runDir := filepath.Join(paths.RunsDir, entry.Name())
		files, err := os.ReadDir(runDir)
		if err != nil {
			return compressed, fmt.Errorf("scanning %s: %w", runDir, err)
		}
		for _, file := range files {
			name := file.Name()
			if !archivableNames[name] || strings.HasSuffix(name, archiveSuffix) {
				continue
			}
			if err := compressFile(filepath.Join(runDir, name)); err != nil {
				return compressed, err
			}
			compressed++
		}
	}
	return compressed, nil
}

func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer source.Close()

	tmp := path + archiveSuffix + ".tmp"
	target, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	encoder, err := zstd.NewWriter(target, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		target.Close()
		os.Remove(tmp)
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		target.Close()
		os.Remove(tmp)
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		target.Close()
		os.Remove(tmp)
		return fmt.Errorf("finishing zstd stream: %w", err)
	}
	if err := target.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path+archiveSuffix); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming archive: %w", err)
	}
	return os.Remove(path)
}
