// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package report persists the run report under a dated directory and keeps
// latest.json pointing at the most recent run.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/domainwatch/domainwatch/types"
)

// Writer owns the reports directory layout.
type Writer struct {
	dir string
	log *slog.Logger
}

// NewWriter returns a Writer rooted at the provided reports directory.
func NewWriter(dir string, log *slog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With("component", "report"),
	}
}

// Write stores the report as reports/<YYYY-MM-DD>/results.json and then
// atomically replaces reports/latest.json. An unwritable reports directory
// is one of the few fatal conditions of a run.
func (w *Writer) Write(report *types.RunReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}

	day := report.ScanTime.Format("2006-01-02")
	dir := filepath.Join(w.dir, day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create the report directory %s: %v", dir, err)
	}

	path := filepath.Join(dir, "results.json")
	if err := atomicWrite(path, data); err != nil {
		return "", fmt.Errorf("failed to write the run report: %v", err)
	}

	latest := filepath.Join(w.dir, "latest.json")
	if err := atomicWrite(latest, data); err != nil {
		return path, fmt.Errorf("failed to update latest.json: %v", err)
	}
	return path, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
