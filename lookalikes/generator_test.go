// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package lookalikes

import (
	"log/slog"
	"os"
	"testing"

	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCandidatesExcludeSeed(t *testing.T) {
	g := NewGenerator("acme.com", testLogger())

	for _, c := range g.Candidates(nil) {
		assert.NotEqual(t, "acme.com", c.Domain)
	}
}

func TestCandidatesDeduplicated(t *testing.T) {
	g := NewGenerator("acme.com", testLogger())

	seen := make(map[string]bool)
	for _, c := range g.Candidates(nil) {
		assert.False(t, seen[c.Domain], c.Domain)
		seen[c.Domain] = true
	}
}

func TestCandidatesContainKnownMutations(t *testing.T) {
	g := NewGenerator("acme.com", testLogger())
	cands := g.Candidates(nil)
	require.NotEmpty(t, cands)

	byDomain := make(map[string]string)
	for _, c := range cands {
		byDomain[c.Domain] = c.Fuzzer
	}

	assert.Equal(t, types.FuzzerOmission, byDomain["ame.com"])
	assert.Equal(t, types.FuzzerTransposition, byDomain["amce.com"])
	assert.Equal(t, types.FuzzerRepetition, byDomain["aacme.com"])
	assert.Equal(t, types.FuzzerHyphenation, byDomain["a-cme.com"])
	assert.Equal(t, types.FuzzerTLDSwap, byDomain["acme.net"])
}

func TestWatchlistJoinsWithOriginalFuzzer(t *testing.T) {
	g := NewGenerator("acme.com", testLogger())

	cands := g.Candidates(&Options{Watchlist: []string{"acme-loan.com", "Secure-ACME.net"}})

	found := make(map[string]string)
	for _, c := range cands {
		found[c.Domain] = c.Fuzzer
	}
	assert.Equal(t, types.FuzzerOriginal, found["acme-loan.com"])
	assert.Equal(t, types.FuzzerOriginal, found["secure-acme.net"])
}

func TestMaliciousTLDExpansion(t *testing.T) {
	g := NewGenerator("acme.com", testLogger())

	base := len(g.Candidates(nil))
	expanded := len(g.Candidates(&Options{IncludeMaliciousTLDs: true}))
	assert.Greater(t, expanded, base)
}

func TestMultiLabelSuffix(t *testing.T) {
	g := NewGenerator("acme.co.uk", testLogger())
	cands := g.Candidates(nil)
	require.NotEmpty(t, cands)

	found := false
	for _, c := range cands {
		if c.Domain == "amce.co.uk" {
			found = true
		}
	}
	assert.True(t, found, "transposition should preserve the multi-label suffix")
}

func TestHomoglyphLabels(t *testing.T) {
	labels := homoglyphLabels("acme")
	assert.Contains(t, labels, "acrne")
}

func TestBitsquattingLabelsAreValid(t *testing.T) {
	for _, label := range bitsquattingLabels("acme") {
		for _, ch := range label {
			valid := (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-'
			assert.True(t, valid, label)
		}
	}
}
