// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package state persists the per-seed snapshot of the last scan and the
// per-candidate WHOIS cache. Only the most recent snapshot is kept; history
// lives in the run reports.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/domainwatch/domainwatch/types"
)

// Store owns snapshot and WHOIS cache persistence for every monitored domain.
type Store struct {
	stateDir string
	whoisDir string
	log      *slog.Logger
}

// NewStore creates the backing directories and returns a ready Store.
func NewStore(stateDir, whoisDir string, log *slog.Logger) (*Store, error) {
	for _, dir := range []string{stateDir, whoisDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create the state directory %s: %v", dir, err)
		}
	}

	return &Store{
		stateDir: stateDir,
		whoisDir: whoisDir,
		log:      log.With("component", "state"),
	}, nil
}

// snapshotPath derives a collision-free filename for the seed.
func (s *Store) snapshotPath(seed string) string {
	name := strings.ReplaceAll(strings.ToLower(seed), ".", "_") + "_state.json"
	return filepath.Join(s.stateDir, name)
}

func (s *Store) whoisPath(seed string) string {
	return filepath.Join(s.whoisDir, strings.ToLower(seed)+".json")
}

// LoadSnapshot returns the previous snapshot for the seed. A missing,
// unreadable or corrupt file yields an empty snapshot and is never fatal.
func (s *Store) LoadSnapshot(seed string) *types.Snapshot {
	path := s.snapshotPath(seed)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("snapshot unreadable, treating as first scan", "seed", seed, "err", err)
		}
		return types.NewSnapshot(seed)
	}

	snap := types.NewSnapshot(seed)
	if err := json.Unmarshal(data, snap); err != nil {
		s.log.Warn("snapshot corrupt, treating as first scan", "seed", seed, "err", err)
		return types.NewSnapshot(seed)
	}
	if snap.RegisteredDomains == nil {
		snap.RegisteredDomains = make(map[string]*types.Candidate)
	}
	snap.Seed = seed
	return snap
}

// SaveSnapshot atomically replaces the stored snapshot for the seed.
func (s *Store) SaveSnapshot(snap *types.Snapshot) error {
	snap.CountRisks()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.snapshotPath(snap.Seed), data)
}

// LoadWhois returns the cached WHOIS records for the seed's candidates.
func (s *Store) LoadWhois(seed string) map[string]*types.WhoisRecord {
	records := make(map[string]*types.WhoisRecord)

	data, err := os.ReadFile(s.whoisPath(seed))
	if err != nil {
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn("whois cache corrupt, starting fresh", "seed", seed, "err", err)
		return make(map[string]*types.WhoisRecord)
	}
	return records
}

// SaveWhois atomically replaces the WHOIS cache for the seed.
func (s *Store) SaveWhois(seed string, records map[string]*types.WhoisRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.whoisPath(seed), data)
}

// Lock takes an exclusive per-seed lock so concurrent runs cannot write the
// same snapshot. The returned release function must be called when done.
func (s *Store) Lock(seed string) (func(), error) {
	path := s.snapshotPath(seed) + ".lock"

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("another run holds the lock for %s: %v", seed, err)
	}
	f.Close()

	return func() { os.Remove(path) }, nil
}

// atomicWrite writes to a temp file in the target directory and renames it
// into place, so a crash mid-write leaves the previous file intact.
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
