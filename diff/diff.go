// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package diff computes typed change events between the previous snapshot
// and the current candidate map. Given the same inputs it always produces
// the same events in the same order.
package diff

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/caffix/stringset"
	"github.com/domainwatch/domainwatch/risk"
	"github.com/domainwatch/domainwatch/types"
)

// WHOIS records older than this are refreshed during backfill.
const whoisRefreshAge = 30 * 24 * time.Hour

// WhoisFetcher is the slice of the RDAP adapter the engine depends on.
type WhoisFetcher interface {
	IsConfigured() bool
	Lookup(ctx context.Context, domain string) (*types.WhoisRecord, error)
}

// Result is the outcome of diffing one seed.
type Result struct {
	Events         []*types.ChangeEvent
	Counts         map[types.ChangeType]int
	WhoisBackfills int
}

// Merge folds another result into this one, preserving event order.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Events = append(r.Events, other.Events...)
	for t, n := range other.Counts {
		r.Counts[t] += n
	}
	r.WhoisBackfills += other.WhoisBackfills
}

// Engine diffs snapshots for one run. The WHOIS fetcher may be nil, in which
// case registration events carry no registration date.
type Engine struct {
	log         *slog.Logger
	whois       WhoisFetcher
	risk        *risk.Classifier
	backfillCap int
	now         func() time.Time
}

// NewEngine returns an Engine honoring the provided per-run WHOIS backfill cap.
func NewEngine(whois WhoisFetcher, rc *risk.Classifier, backfillCap int, log *slog.Logger) *Engine {
	if backfillCap <= 0 {
		backfillCap = 10
	}

	return &Engine{
		log:         log.With("component", "diff"),
		whois:       whois,
		risk:        rc,
		backfillCap: backfillCap,
		now:         time.Now,
	}
}

// Diff emits the change events between prev and current. The whoisCache is
// read for prior registrar data and updated in place with fresh lookups.
// Candidates gain FirstSeen provenance and WHOIS-backed reclassification as
// a side effect.
func (e *Engine) Diff(ctx context.Context, prev *types.Snapshot, current map[string]*types.Candidate,
	whoisCache map[string]*types.WhoisRecord, seed string, allowlist []string) *Result {

	result := &Result{Counts: make(map[types.ChangeType]int)}

	domains := make([]string, 0, len(current))
	for d := range current {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, d := range domains {
		cand := current[d]
		previous, existed := prev.RegisteredDomains[d]

		if !existed {
			e.newRegistration(ctx, cand, whoisCache, seed, allowlist, result)
			continue
		}

		if cand.FirstSeen.IsZero() {
			cand.FirstSeen = previous.FirstSeen
		}
		e.applyCachedWhois(cand, whoisCache[d])
		e.backfillWhois(ctx, cand, whoisCache, seed, allowlist, result)
		e.transitionEvents(previous, cand, result)
	}
	return result
}

func (e *Engine) emit(result *Result, ev *types.ChangeEvent) {
	ev.Priority = types.ChangePriority(ev.Type)
	ev.IsDefensive = ev.Candidate.IsDefensive
	result.Events = append(result.Events, ev)
	result.Counts[ev.Type]++
}

// newRegistration handles a domain absent from the previous snapshot. WHOIS
// is fetched best-effort so the defensive decision is final before the event
// is emitted.
func (e *Engine) newRegistration(ctx context.Context, cand *types.Candidate,
	whoisCache map[string]*types.WhoisRecord, seed string, allowlist []string, result *Result) {

	if cand.FirstSeen.IsZero() {
		cand.FirstSeen = e.now()
	}

	if e.whois != nil && e.whois.IsConfigured() {
		if rec, err := e.whois.Lookup(ctx, cand.Domain); err == nil {
			cand.Registrar = rec.Registrar
			cand.RegistrationDate = rec.RegistrationDate
			cand.WhoisNameServers = rec.NameServers
			whoisCache[cand.Domain] = rec
		} else {
			e.log.Debug("whois lookup failed for new registration", "domain", cand.Domain, "err", err)
		}
	}
	e.risk.Assign(cand, seed, allowlist)

	e.emit(result, &types.ChangeEvent{
		Type:          types.ChangeNewRegistration,
		Domain:        cand.Domain,
		Candidate:     cand,
		CurrRegistrar: cand.Registrar,
		CurrNS:        cand.DNSNS,
	})
}

func (e *Engine) applyCachedWhois(cand *types.Candidate, rec *types.WhoisRecord) {
	if rec == nil {
		return
	}
	if cand.Registrar == "" {
		cand.Registrar = rec.Registrar
	}
	if cand.RegistrationDate == "" {
		cand.RegistrationDate = rec.RegistrationDate
	}
	if len(cand.WhoisNameServers) == 0 {
		cand.WhoisNameServers = rec.NameServers
	}
}

// backfillWhois lazily fetches WHOIS for existing candidates with missing or
// stale records, bounded by the per-run cap to limit external load.
func (e *Engine) backfillWhois(ctx context.Context, cand *types.Candidate,
	whoisCache map[string]*types.WhoisRecord, seed string, allowlist []string, result *Result) {

	if e.whois == nil || !e.whois.IsConfigured() || result.WhoisBackfills >= e.backfillCap {
		return
	}

	cached := whoisCache[cand.Domain]
	if cached != nil && e.now().Sub(cached.LastChecked) < whoisRefreshAge {
		return
	}

	rec, err := e.whois.Lookup(ctx, cand.Domain)
	result.WhoisBackfills++
	if err != nil {
		e.log.Debug("whois backfill failed", "domain", cand.Domain, "err", err)
		return
	}

	cand.Registrar = rec.Registrar
	cand.RegistrationDate = rec.RegistrationDate
	cand.WhoisNameServers = rec.NameServers
	e.risk.Assign(cand, seed, allowlist)

	if cached != nil && whoisChanged(cached, rec) {
		e.emit(result, &types.ChangeEvent{
			Type:          types.ChangeWhoisChange,
			Domain:        cand.Domain,
			Candidate:     cand,
			PrevRegistrar: cached.Registrar,
			CurrRegistrar: rec.Registrar,
			PrevNS:        cached.NameServers,
			CurrNS:        rec.NameServers,
		})
	}
	whoisCache[cand.Domain] = rec
}

func whoisChanged(prev, curr *types.WhoisRecord) bool {
	if prev.Registrar != curr.Registrar {
		return true
	}
	return !sameSet(prev.NameServers, curr.NameServers)
}

// transitionEvents emits the events for a candidate present in both scans.
func (e *Engine) transitionEvents(prev, curr *types.Candidate, result *Result) {
	prevParked, prevKnown := prev.ParkedBool()
	currParked, currKnown := curr.ParkedBool()

	if prevKnown && currKnown {
		if prevParked && !currParked {
			e.emit(result, &types.ChangeEvent{
				Type:      types.ChangeBecameActive,
				Domain:    curr.Domain,
				Candidate: curr,
			})
		} else if !prevParked && currParked {
			e.emit(result, &types.ChangeEvent{
				Type:      types.ChangeBecameParked,
				Domain:    curr.Domain,
				Candidate: curr,
			})
		}
	}

	if len(prev.DNSA) > 0 && len(curr.DNSA) > 0 && !sameSet(prev.DNSA, curr.DNSA) {
		added, removed := setDelta(prev.DNSA, curr.DNSA)
		e.emit(result, &types.ChangeEvent{
			Type:       types.ChangeIPChange,
			Domain:     curr.Domain,
			Candidate:  curr,
			AddedIPs:   added,
			RemovedIPs: removed,
		})
	}

	if len(prev.DNSMX) == 0 && len(curr.DNSMX) > 0 {
		e.emit(result, &types.ChangeEvent{
			Type:      types.ChangeMXNew,
			Domain:    curr.Domain,
			Candidate: curr,
			CurrMX:    curr.DNSMX,
		})
	} else if len(prev.DNSMX) > 0 && len(curr.DNSMX) > 0 && !sameSet(prev.DNSMX, curr.DNSMX) {
		e.emit(result, &types.ChangeEvent{
			Type:      types.ChangeMXChange,
			Domain:    curr.Domain,
			Candidate: curr,
			PrevMX:    prev.DNSMX,
			CurrMX:    curr.DNSMX,
		})
	}

	if prev.GeoIP != "" && curr.GeoIP != "" && prev.GeoIP != curr.GeoIP {
		e.emit(result, &types.ChangeEvent{
			Type:      types.ChangeGeoIPChange,
			Domain:    curr.Domain,
			Candidate: curr,
			PrevGeoIP: prev.GeoIP,
			CurrGeoIP: curr.GeoIP,
		})
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	set := stringset.New(a...)
	defer set.Close()

	for _, v := range b {
		if !set.Has(v) {
			return false
		}
	}
	return true
}

func setDelta(prev, curr []string) (added, removed []string) {
	prevSet := stringset.New(prev...)
	defer prevSet.Close()
	currSet := stringset.New(curr...)
	defer currSet.Close()

	for _, v := range curr {
		if !prevSet.Has(v) {
			added = append(added, v)
		}
	}
	for _, v := range prev {
		if !currSet.Has(v) {
			removed = append(removed, v)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
