// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewStore(filepath.Join(dir, "state"), filepath.Join(dir, "whois_state"), log)
	require.NoError(t, err)
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)

	snap := types.NewSnapshot("acme.com")
	snap.LastScanTime = time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	cand := &types.Candidate{
		Domain:    "acrne.com",
		Fuzzer:    types.FuzzerHomoglyph,
		DNSA:      []string{"1.2.3.4"},
		DNSMX:     []string{"mail.acrne.com"},
		RiskLevel: types.RiskHighRisk,
		FirstSeen: snap.LastScanTime,
	}
	cand.SetParked(false)
	snap.RegisteredDomains[cand.Domain] = cand

	require.NoError(t, s.SaveSnapshot(snap))

	loaded := s.LoadSnapshot("acme.com")
	assert.Equal(t, snap.Seed, loaded.Seed)
	assert.True(t, snap.LastScanTime.Equal(loaded.LastScanTime))
	require.Contains(t, loaded.RegisteredDomains, "acrne.com")

	got := loaded.RegisteredDomains["acrne.com"]
	assert.Equal(t, cand.DNSA, got.DNSA)
	assert.Equal(t, cand.RiskLevel, got.RiskLevel)
	parked, known := got.ParkedBool()
	assert.True(t, known)
	assert.False(t, parked)
}

func TestMissingSnapshotIsFirstScan(t *testing.T) {
	s := testStore(t)

	snap := s.LoadSnapshot("never-seen.com")
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.RegisteredDomains)
}

func TestCorruptSnapshotIsFirstScan(t *testing.T) {
	s := testStore(t)

	path := s.snapshotPath("acme.com")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	snap := s.LoadSnapshot("acme.com")
	assert.True(t, snap.Empty())
}

func TestSnapshotFilenameDerivation(t *testing.T) {
	s := testStore(t)

	assert.Equal(t, "acme_com_state.json", filepath.Base(s.snapshotPath("Acme.Com")))
}

func TestAtomicWriteLeavesPreviousIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	// A failed write must not disturb the existing file
	require.NoError(t, atomicWrite(path, []byte("current")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "current", string(data))

	// Leftover temp files never shadow the target
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWhoisRoundTrip(t *testing.T) {
	s := testStore(t)

	records := map[string]*types.WhoisRecord{
		"acrne.com": {
			Domain:      "acrne.com",
			Registrar:   "NameCheap, Inc.",
			NameServers: []string{"dns1.registrar-servers.com"},
			LastChecked: time.Now().UTC().Truncate(time.Second),
		},
	}
	require.NoError(t, s.SaveWhois("acme.com", records))

	loaded := s.LoadWhois("acme.com")
	require.Contains(t, loaded, "acrne.com")
	assert.Equal(t, "NameCheap, Inc.", loaded["acrne.com"].Registrar)
}

func TestLockPreventsConcurrentRuns(t *testing.T) {
	s := testStore(t)

	release, err := s.Lock("acme.com")
	require.NoError(t, err)

	_, err = s.Lock("acme.com")
	assert.Error(t, err)

	release()
	release2, err := s.Lock("acme.com")
	require.NoError(t, err)
	release2()
}
