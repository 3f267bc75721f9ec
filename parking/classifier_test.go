// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package parking

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	dwhttp "github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingScanner records category lookups so short-circuit behavior is visible.
type countingScanner struct {
	categories []string
	err        error
	calls      int
}

func (s *countingScanner) IsConfigured() bool { return true }

func (s *countingScanner) Categories(ctx context.Context, domain string) ([]string, error) {
	s.calls++
	return s.categories, s.err
}

// scriptedDoer serves canned probe responses keyed by URL.
type scriptedDoer struct {
	responses map[string]*dwhttp.ProbeResponse
	calls     int
}

func (d *scriptedDoer) do(ctx context.Context, u string) (*dwhttp.ProbeResponse, error) {
	d.calls++
	if resp, found := d.responses[u]; found {
		return resp, nil
	}
	return nil, errors.New("unreachable")
}

func TestNameserverTierShortCircuits(t *testing.T) {
	scanner := &countingScanner{}
	doer := &scriptedDoer{}
	c := NewClassifier(scanner, testLogger())
	c.prober.client = doer

	cand := &types.Candidate{
		Domain: "acrne.com",
		DNSA:   []string{"93.184.216.34"},
		DNSNS:  []string{"ns1.sedoparking.com"},
	}

	v := c.Classify(context.Background(), cand)
	require.True(t, v.Known)
	assert.True(t, v.Parked)
	assert.Equal(t, "sedo", v.Provider)
	assert.Equal(t, types.ConfidenceHigh, v.Confidence)

	// Later tiers must not run once the NS tier decided
	assert.Zero(t, scanner.calls)
	assert.Zero(t, doer.calls)
}

func TestIPRangeTier(t *testing.T) {
	c := NewClassifier(nil, testLogger())

	cand := &types.Candidate{
		Domain: "acrne.com",
		// Inside the Bodis parking range embedded in resources
		DNSA:  []string{"199.59.243.10"},
		DNSNS: []string{"ns1.example.net"},
	}

	v := c.Classify(context.Background(), cand)
	require.True(t, v.Known)
	assert.True(t, v.Parked)
	assert.Equal(t, types.ConfidenceMedium, v.Confidence)
}

func TestURLScanParkedCategory(t *testing.T) {
	scanner := &countingScanner{categories: []string{"Parked"}}
	c := NewClassifier(scanner, testLogger())

	cand := &types.Candidate{
		Domain: "acrne.com",
		DNSA:   []string{"93.184.216.34"},
	}

	v := c.Classify(context.Background(), cand)
	require.True(t, v.Known)
	assert.True(t, v.Parked)
	assert.Equal(t, 1, scanner.calls)
}

func TestURLScanVerdictIsMemoized(t *testing.T) {
	scanner := &countingScanner{categories: []string{"Parked"}}
	c := NewClassifier(scanner, testLogger())

	cand := &types.Candidate{Domain: "acrne.com", DNSA: []string{"93.184.216.34"}}
	c.Classify(context.Background(), cand)
	c.Classify(context.Background(), cand)
	assert.Equal(t, 1, scanner.calls)

	// Expired entries trigger a fresh lookup
	c.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	c.Classify(context.Background(), cand)
	assert.Equal(t, 2, scanner.calls)
}

func TestProbeTierDecidesWhenEarlierTiersCannot(t *testing.T) {
	scanner := &countingScanner{err: errors.New("api down")}
	doer := &scriptedDoer{responses: map[string]*dwhttp.ProbeResponse{
		"https://acrne.com": {
			StatusCode: 200,
			FinalURL:   "https://acrne.com/",
			Body:       "<html><body>This domain is for sale! Make an offer today.</body></html>",
		},
	}}
	c := NewClassifier(scanner, testLogger())
	c.prober.client = doer

	cand := &types.Candidate{Domain: "acrne.com", DNSA: []string{"93.184.216.34"}}
	v := c.Classify(context.Background(), cand)

	require.True(t, v.Known)
	assert.True(t, v.Parked)
	assert.Equal(t, 1, scanner.calls)
	assert.Equal(t, 1, doer.calls)
}

func TestAllTiersFailingYieldsUnknown(t *testing.T) {
	doer := &scriptedDoer{}
	c := NewClassifier(nil, testLogger())
	c.prober.client = doer

	cand := &types.Candidate{Domain: "acrne.com", DNSA: []string{"93.184.216.34"}, DNSNS: []string{"ns1.example.net"}}
	v := c.Classify(context.Background(), cand)

	assert.False(t, v.Known)

	// An unknown verdict leaves the candidate's tri-state untouched
	v.Apply(cand)
	_, known := cand.ParkedBool()
	assert.False(t, known)
}

func TestClassifyAllSkipsUnregistered(t *testing.T) {
	scanner := &countingScanner{categories: []string{"Parked"}}
	c := NewClassifier(scanner, testLogger())

	registered := &types.Candidate{Domain: "acrne.com", DNSA: []string{"93.184.216.34"}}
	unregistered := &types.Candidate{Domain: "amce.com"}

	c.ClassifyAll(context.Background(), []*types.Candidate{registered, unregistered}, 2)

	_, known := registered.ParkedBool()
	assert.True(t, known)
	_, known = unregistered.ParkedBool()
	assert.False(t, known)
}
