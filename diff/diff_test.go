// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/risk"
	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = "acme.com"

// fakeWhois is a WhoisFetcher with scripted answers.
type fakeWhois struct {
	records map[string]*types.WhoisRecord
	calls   int
}

func (f *fakeWhois) IsConfigured() bool { return true }

func (f *fakeWhois) Lookup(ctx context.Context, domain string) (*types.WhoisRecord, error) {
	f.calls++
	if rec, found := f.records[domain]; found {
		rec.LastChecked = time.Now()
		return rec, nil
	}
	return nil, errors.New("no such domain")
}

func testEngine(whois WhoisFetcher, backfillCap int) *Engine {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEngine(whois, risk.NewClassifier(), backfillCap, log)
}

func registeredCandidate(domain string, mx ...string) *types.Candidate {
	return &types.Candidate{
		Domain: domain,
		DNSA:   []string{"1.2.3.4"},
		DNSMX:  mx,
	}
}

func TestFirstScanEmitsOnlyNewRegistrations(t *testing.T) {
	e := testEngine(nil, 10)

	current := map[string]*types.Candidate{
		"acrne.com":     registeredCandidate("acrne.com"),
		"acme-loan.com": registeredCandidate("acme-loan.com", "mail.x"),
	}

	result := e.Diff(context.Background(), types.NewSnapshot(seed), current, map[string]*types.WhoisRecord{}, seed, nil)

	require.Len(t, result.Events, 2)
	for _, ev := range result.Events {
		assert.Equal(t, types.ChangeNewRegistration, ev.Type)
	}
	assert.Equal(t, 2, result.Counts[types.ChangeNewRegistration])
}

func TestDiffIsDeterministic(t *testing.T) {
	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acrne.com"] = registeredCandidate("acrne.com")

	build := func() map[string]*types.Candidate {
		c1 := registeredCandidate("acrne.com")
		c1.DNSA = []string{"5.6.7.8"}
		return map[string]*types.Candidate{
			"acrne.com": c1,
			"amce.com":  registeredCandidate("amce.com"),
			"acme.net":  registeredCandidate("acme.net"),
		}
	}

	e := testEngine(nil, 10)
	first := e.Diff(context.Background(), prev, build(), map[string]*types.WhoisRecord{}, seed, nil)
	second := e.Diff(context.Background(), prev, build(), map[string]*types.WhoisRecord{}, seed, nil)

	require.Equal(t, len(first.Events), len(second.Events))
	for i := range first.Events {
		assert.Equal(t, first.Events[i].Type, second.Events[i].Type)
		assert.Equal(t, first.Events[i].Domain, second.Events[i].Domain)
	}
}

func TestBecameActiveAndParkedTransitions(t *testing.T) {
	prevParked := registeredCandidate("acme-login.com")
	prevParked.SetParked(true)
	prevActive := registeredCandidate("acme-pay.com")
	prevActive.SetParked(false)

	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acme-login.com"] = prevParked
	prev.RegisteredDomains["acme-pay.com"] = prevActive

	currActive := registeredCandidate("acme-login.com")
	currActive.SetParked(false)
	currParked := registeredCandidate("acme-pay.com")
	currParked.SetParked(true)

	current := map[string]*types.Candidate{
		"acme-login.com": currActive,
		"acme-pay.com":   currParked,
	}

	e := testEngine(nil, 10)
	result := e.Diff(context.Background(), prev, current, map[string]*types.WhoisRecord{}, seed, nil)

	byType := make(map[types.ChangeType]*types.ChangeEvent)
	for _, ev := range result.Events {
		byType[ev.Type] = ev
	}

	require.Contains(t, byType, types.ChangeBecameActive)
	assert.Equal(t, "acme-login.com", byType[types.ChangeBecameActive].Domain)
	assert.Equal(t, types.PriorityHigh, byType[types.ChangeBecameActive].Priority)

	require.Contains(t, byType, types.ChangeBecameParked)
	assert.Equal(t, "acme-pay.com", byType[types.ChangeBecameParked].Domain)
}

func TestUnknownParkingNeverTransitions(t *testing.T) {
	prevParked := registeredCandidate("acme-login.com")
	prevParked.SetParked(true)

	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acme-login.com"] = prevParked

	// The cascade failed this run; the verdict is unknown, not active
	current := map[string]*types.Candidate{
		"acme-login.com": registeredCandidate("acme-login.com"),
	}

	e := testEngine(nil, 10)
	result := e.Diff(context.Background(), prev, current, map[string]*types.WhoisRecord{}, seed, nil)

	for _, ev := range result.Events {
		assert.NotEqual(t, types.ChangeBecameActive, ev.Type)
		assert.NotEqual(t, types.ChangeBecameParked, ev.Type)
	}
}

func TestIPAndMXAndGeoIPChanges(t *testing.T) {
	prevCand := registeredCandidate("acrne.com")
	prevCand.DNSA = []string{"1.1.1.1", "2.2.2.2"}
	prevCand.GeoIP = "US"

	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acrne.com"] = prevCand

	curr := registeredCandidate("acrne.com")
	curr.DNSA = []string{"2.2.2.2", "3.3.3.3"}
	curr.DNSMX = []string{"mail.acrne.com"}
	curr.GeoIP = "RU"

	e := testEngine(nil, 10)
	result := e.Diff(context.Background(), prev,
		map[string]*types.Candidate{"acrne.com": curr}, map[string]*types.WhoisRecord{}, seed, nil)

	byType := make(map[types.ChangeType]*types.ChangeEvent)
	for _, ev := range result.Events {
		byType[ev.Type] = ev
	}

	require.Contains(t, byType, types.ChangeIPChange)
	assert.Equal(t, []string{"3.3.3.3"}, byType[types.ChangeIPChange].AddedIPs)
	assert.Equal(t, []string{"1.1.1.1"}, byType[types.ChangeIPChange].RemovedIPs)

	require.Contains(t, byType, types.ChangeMXNew)
	assert.Equal(t, types.PriorityHigh, byType[types.ChangeMXNew].Priority)

	require.Contains(t, byType, types.ChangeGeoIPChange)
	assert.Equal(t, "US", byType[types.ChangeGeoIPChange].PrevGeoIP)
	assert.Equal(t, "RU", byType[types.ChangeGeoIPChange].CurrGeoIP)
}

func TestDefensiveEventsAreNotActionable(t *testing.T) {
	e := testEngine(nil, 10)

	cand := registeredCandidate("acme-careers.com", "mail.acme-careers.com")
	result := e.Diff(context.Background(), types.NewSnapshot(seed),
		map[string]*types.Candidate{"acme-careers.com": cand},
		map[string]*types.WhoisRecord{}, seed, []string{"acme-careers.com"})

	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.Equal(t, types.ChangeNewRegistration, ev.Type)
	assert.True(t, ev.IsDefensive)
	assert.False(t, ev.Actionable())
}

func TestNewRegistrationFetchesWhoisAndReclassifies(t *testing.T) {
	whois := &fakeWhois{records: map[string]*types.WhoisRecord{
		"acrne.com": {
			Domain:    "acrne.com",
			Registrar: "MarkMonitor Inc.",
		},
	}}
	e := testEngine(whois, 10)

	cand := registeredCandidate("acrne.com", "mail.acrne.com")
	cache := map[string]*types.WhoisRecord{}
	result := e.Diff(context.Background(), types.NewSnapshot(seed),
		map[string]*types.Candidate{"acrne.com": cand}, cache, seed, nil)

	require.Len(t, result.Events, 1)
	// The brand-protection registrar makes the MX-bearing domain defensive
	assert.True(t, cand.IsDefensive)
	assert.Contains(t, cache, "acrne.com")
}

func TestWhoisBackfillHonorsCap(t *testing.T) {
	whois := &fakeWhois{records: map[string]*types.WhoisRecord{}}
	e := testEngine(whois, 2)

	prev := types.NewSnapshot(seed)
	current := make(map[string]*types.Candidate)
	for _, d := range []string{"a1.com", "a2.com", "a3.com", "a4.com"} {
		prev.RegisteredDomains[d] = registeredCandidate(d)
		current[d] = registeredCandidate(d)
	}

	result := e.Diff(context.Background(), prev, current, map[string]*types.WhoisRecord{}, seed, nil)
	assert.Equal(t, 2, result.WhoisBackfills)
	assert.Equal(t, 2, whois.calls)
}

func TestWhoisChangeEvent(t *testing.T) {
	stale := time.Now().Add(-60 * 24 * time.Hour)
	cache := map[string]*types.WhoisRecord{
		"acrne.com": {
			Domain:      "acrne.com",
			Registrar:   "Old Registrar",
			NameServers: []string{"ns1.old.com"},
			LastChecked: stale,
		},
	}
	whois := &fakeWhois{records: map[string]*types.WhoisRecord{
		"acrne.com": {
			Domain:      "acrne.com",
			Registrar:   "New Registrar",
			NameServers: []string{"ns1.new.com"},
		},
	}}
	e := testEngine(whois, 10)

	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acrne.com"] = registeredCandidate("acrne.com")
	current := map[string]*types.Candidate{"acrne.com": registeredCandidate("acrne.com")}

	result := e.Diff(context.Background(), prev, current, cache, seed, nil)

	var whoisEv *types.ChangeEvent
	for _, ev := range result.Events {
		if ev.Type == types.ChangeWhoisChange {
			whoisEv = ev
		}
	}
	require.NotNil(t, whoisEv)
	assert.Equal(t, "Old Registrar", whoisEv.PrevRegistrar)
	assert.Equal(t, "New Registrar", whoisEv.CurrRegistrar)
}

func TestFirstSeenCarriesForward(t *testing.T) {
	firstSeen := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	prevCand := registeredCandidate("acrne.com")
	prevCand.FirstSeen = firstSeen

	prev := types.NewSnapshot(seed)
	prev.RegisteredDomains["acrne.com"] = prevCand

	curr := registeredCandidate("acrne.com")
	e := testEngine(nil, 10)
	e.Diff(context.Background(), prev,
		map[string]*types.Candidate{"acrne.com": curr}, map[string]*types.WhoisRecord{}, seed, nil)

	assert.True(t, firstSeen.Equal(curr.FirstSeen))
}
