// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package monitor sequences one full run: per-seed candidate pipeline, diff,
// enrichment, snapshot persistence, report writing and the daily summary.
// Seeds are processed sequentially to keep per-feed rate accounting simple.
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/caffix/pipeline"
	"github.com/caffix/queue"
	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/datasrcs"
	"github.com/domainwatch/domainwatch/diff"
	"github.com/domainwatch/domainwatch/enrich"
	"github.com/domainwatch/domainwatch/lookalikes"
	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/notify"
	"github.com/domainwatch/domainwatch/parking"
	"github.com/domainwatch/domainwatch/report"
	"github.com/domainwatch/domainwatch/risk"
	"github.com/domainwatch/domainwatch/state"
	"github.com/domainwatch/domainwatch/types"
)

// Monitor executes daily monitoring runs.
type Monitor struct {
	cfg      *config.Config
	log      *slog.Logger
	srcs     *datasrcs.Sources
	resolver *dns.Resolver
	parking  *parking.Classifier
	risk     *risk.Classifier
	store    *state.Store
	differ   *diff.Engine
	enricher *enrich.Enricher
	reporter *report.Writer
	notifier *notify.Notifier

	// Finished per-seed reports waiting for accumulation
	results queue.Queue
}

// NewMonitor wires the components for one run from the provided configuration.
func NewMonitor(cfg *config.Config, log *slog.Logger) (*Monitor, error) {
	store, err := state.NewStore(cfg.StateDir(), cfg.WhoisDir(), log)
	if err != nil {
		return nil, err
	}

	srcs := datasrcs.NewSources(cfg, log)
	rc := risk.NewClassifier()

	return &Monitor{
		cfg:      cfg,
		log:      log.With("component", "monitor"),
		srcs:     srcs,
		resolver: dns.NewResolver(cfg.Resolver, int64(cfg.MaxDNSQueries)),
		parking:  parking.NewClassifier(srcs.URLScan, log),
		risk:     rc,
		store:    store,
		differ:   diff.NewEngine(srcs.RDAP, rc, cfg.WhoisBackfillCap, log),
		enricher: enrich.NewEnricher(cfg, srcs, log),
		reporter: report.NewWriter(cfg.ReportsDir(), log),
		notifier: notify.NewNotifier(cfg, log),
		results:  queue.NewQueue(),
	}, nil
}

// ConfiguredSources returns the names of the feeds ready for this run.
func (m *Monitor) ConfiguredSources() []string {
	return m.srcs.Configured()
}

// Run performs one orchestrator pass over every monitored domain and returns
// the written report. Feed failures never fail the run; only an unwritable
// reports directory surfaces as an error.
func (m *Monitor) Run(ctx context.Context) (*types.RunReport, error) {
	run := types.NewRunReport(m.cfg.UUID.String(), time.Now())

	for _, seed := range m.cfg.MonitoredDomains {
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}
		m.log.Info("scanning monitored domain", "seed", seed)
		m.results.Append(m.runSeed(ctx, seed))
	}
	if ctx.Err() != nil {
		run.Cancelled = true
	}

	for {
		element, ok := m.results.Next()
		if !ok {
			break
		}
		run.Accumulate(element.(*types.DomainReport))
	}

	path, err := m.reporter.Write(run)
	if err != nil {
		return run, err
	}
	m.log.Info("run report written", "path", path, "cancelled", run.Cancelled)

	if err := m.notifier.Summarize(ctx, run); err != nil {
		m.log.Warn("failed to deliver the summary notification", "err", err)
	}
	return run, nil
}

// runSeed executes the serial pipeline for one monitored domain and returns
// its report. Every failure inside degrades to a marked stage.
func (m *Monitor) runSeed(ctx context.Context, seed string) *types.DomainReport {
	dr := types.NewDomainReport(seed)

	release, err := m.store.Lock(seed)
	if err != nil {
		m.log.Warn("skipping seed", "seed", seed, "err", err)
		dr.Lookalikes.FeedResult = types.FailedResult(err.Error())
		return dr
	}
	defer release()

	prev := m.store.LoadSnapshot(seed)
	whoisCache := m.store.LoadWhois(seed)
	allowlist := m.allowlist(seed)

	gen := lookalikes.NewGenerator(seed, m.log)
	candidates := gen.Candidates(&lookalikes.Options{
		IncludeMaliciousTLDs: m.cfg.IncludeMaliciousTLDs,
		Watchlist:            m.cfg.WatchlistFor(seed),
	})
	candidates = carryForward(prev, candidates)

	current, err := m.materialize(ctx, seed, allowlist, candidates)
	if err != nil {
		dr.Lookalikes.FeedResult = types.FailedResult(err.Error())
		return dr
	}
	if ctx.Err() != nil {
		dr.Lookalikes.FeedResult = types.FailedResult(ctx.Err().Error())
		return dr
	}

	diffed := m.differ.Diff(ctx, prev, current, whoisCache, seed, allowlist)

	beforeEnrich := make(map[string]bool, len(current))
	for d := range current {
		beforeEnrich[d] = true
	}

	m.enricher.Run(ctx, &enrich.Input{
		Seed:    seed,
		Label:   gen.BaseLabel(),
		SeedIPs: m.seedIPs(ctx, seed),
		Current: current,
		Events:  diffed.Events,
		Report:  dr,
		Admit:   m.admitter(seed, allowlist, current),
	})

	// Discoveries admitted mid-enrichment joined current after the first
	// diff, so the newcomers are diffed against the same snapshot
	if admitted := admittedCandidates(current, beforeEnrich); len(admitted) > 0 {
		diffed.Merge(m.differ.Diff(ctx, prev, admitted, whoisCache, seed, allowlist))
	}

	// Enrichment writes reputation onto candidates after the pipeline risk
	// stage already ran, so the ladder is applied once more
	m.reclassify(current, seed, allowlist)

	// Persist after enrichment so re-runs keep classification context
	snap := types.NewSnapshot(seed)
	snap.LastScanTime = time.Now()
	snap.RegisteredDomains = current
	snap.CountRisks()
	if err := m.store.SaveSnapshot(snap); err != nil {
		m.log.Warn("failed to persist the snapshot", "seed", seed, "err", err)
	}
	if err := m.store.SaveWhois(seed, whoisCache); err != nil {
		m.log.Warn("failed to persist the whois cache", "seed", seed, "err", err)
	}

	m.fillLookalikes(dr, snap, current, diffed)
	return dr
}

// carryForward appends candidates for domains tracked in the previous
// snapshot that generation no longer produces. Brand-impersonation
// discoveries age out of the certificate and Recorded Future windows, yet
// their DNS and parking transitions still need tracking.
func carryForward(prev *types.Snapshot, candidates []*types.Candidate) []*types.Candidate {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.Domain] = true
	}

	var missing []string
	for d := range prev.RegisteredDomains {
		if !known[d] {
			missing = append(missing, d)
		}
	}
	sort.Strings(missing)

	for _, d := range missing {
		candidates = append(candidates, &types.Candidate{
			Domain: d,
			Fuzzer: prev.RegisteredDomains[d].Fuzzer,
		})
	}
	return candidates
}

// admittedCandidates returns the candidates that joined current after the
// initial diff ran.
func admittedCandidates(current map[string]*types.Candidate, known map[string]bool) map[string]*types.Candidate {
	admitted := make(map[string]*types.Candidate)
	for d, c := range current {
		if !known[d] {
			admitted[d] = c
		}
	}
	return admitted
}

// reclassify reruns the risk ladder over the candidate set once every feed
// verdict has landed.
func (m *Monitor) reclassify(current map[string]*types.Candidate, seed string, allowlist []string) {
	for _, cand := range current {
		m.risk.Assign(cand, seed, allowlist)
	}
}

// materialize runs generated candidates through the resolve, parking and
// risk stages and returns the registered candidate map.
func (m *Monitor) materialize(ctx context.Context, seed string,
	allowlist []string, candidates []*types.Candidate) (map[string]*types.Candidate, error) {

	current := make(map[string]*types.Candidate)

	sink := pipeline.SinkFunc(func(ctx context.Context, data pipeline.Data) error {
		if cand, ok := data.(*types.Candidate); ok {
			current[cand.Domain] = cand
		}
		return nil
	})

	p := pipeline.NewPipeline(
		pipeline.FixedPool("resolve", m.resolveTask(), 20),
		pipeline.FixedPool("parking", m.parkingTask(), m.cfg.ParkingWorkers),
		pipeline.FIFO("risk", m.riskTask(seed, allowlist)),
	)
	err := p.ExecuteBuffered(ctx, newCandidateSource(candidates), sink, 50)
	return current, err
}

// resolveTask gathers the DNS record sets for each candidate and drops the
// unregistered ones when the configuration requires registration.
func (m *Monitor) resolveTask() pipeline.Task {
	return pipeline.TaskFunc(func(ctx context.Context, data pipeline.Data, tp pipeline.TaskParams) (pipeline.Data, error) {
		cand, ok := data.(*types.Candidate)
		if !ok {
			return data, nil
		}

		res, err := m.resolver.Resolve(ctx, cand.Domain)
		if err != nil {
			if m.cfg.RegisteredOnly {
				return nil, nil
			}
			return cand, nil
		}

		cand.DNSA = res.A
		cand.DNSAAAA = res.AAAA
		cand.DNSMX = res.MX
		cand.DNSNS = res.NS
		if m.cfg.RegisteredOnly && !cand.Registered() {
			return nil, nil
		}

		if len(cand.DNSA) > 0 && m.srcs.IPAPI.IsConfigured() {
			if country, err := m.srcs.IPAPI.Country(ctx, cand.DNSA[0]); err == nil {
				cand.GeoIP = country
			}
		}
		return cand, nil
	})
}

func (m *Monitor) parkingTask() pipeline.Task {
	return pipeline.TaskFunc(func(ctx context.Context, data pipeline.Data, tp pipeline.TaskParams) (pipeline.Data, error) {
		if cand, ok := data.(*types.Candidate); ok && cand.Registered() {
			m.parking.Classify(ctx, cand).Apply(cand)
		}
		return data, nil
	})
}

func (m *Monitor) riskTask(seed string, allowlist []string) pipeline.Task {
	return pipeline.TaskFunc(func(ctx context.Context, data pipeline.Data, tp pipeline.TaskParams) (pipeline.Data, error) {
		if cand, ok := data.(*types.Candidate); ok {
			m.risk.Assign(cand, seed, allowlist)
		}
		return data, nil
	})
}

// admitter returns the callback enrichment uses to bring brand-impersonation
// discoveries into the candidate set mid-run.
func (m *Monitor) admitter(seed string, allowlist []string, current map[string]*types.Candidate) enrich.Admitter {
	return func(ctx context.Context, domain, fuzzer string) *types.Candidate {
		d := dns.Normalize(domain)
		if d == "" || d == seed {
			return nil
		}
		if _, exists := current[d]; exists {
			return nil
		}

		res, err := m.resolver.Resolve(ctx, d)
		if err != nil || (m.cfg.RegisteredOnly && !res.Registered()) {
			return nil
		}

		cand := &types.Candidate{
			Domain:    d,
			Fuzzer:    fuzzer,
			DNSA:      res.A,
			DNSAAAA:   res.AAAA,
			DNSMX:     res.MX,
			DNSNS:     res.NS,
			FirstSeen: time.Now(),
		}
		m.parking.Classify(ctx, cand).Apply(cand)
		m.risk.Assign(cand, seed, allowlist)
		current[d] = cand
		return cand
	}
}

// allowlist joins the seed's defensive registrations with the brand's known
// legitimate domains.
func (m *Monitor) allowlist(seed string) []string {
	m.cfg.Lock()
	defensive := append([]string(nil), m.cfg.DefensiveDomains[dns.Normalize(seed)]...)
	m.cfg.Unlock()

	return append(defensive, m.cfg.LegitimateDomains(seed)...)
}

func (m *Monitor) seedIPs(ctx context.Context, seed string) []string {
	res, err := m.resolver.Resolve(ctx, seed)
	if err != nil {
		return nil
	}
	return res.A
}

func (m *Monitor) fillLookalikes(dr *types.DomainReport, snap *types.Snapshot,
	current map[string]*types.Candidate, diffed *diff.Result) {

	cands := make([]*types.Candidate, 0, len(current))
	for _, c := range current {
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Domain < cands[j].Domain })

	dr.Lookalikes = &types.LookalikeResult{
		FeedResult:       types.OKResult(),
		Candidates:       cands,
		Changes:          diffed.Events,
		NewRegistrations: diffed.Counts[types.ChangeNewRegistration],
		BecameActive:     diffed.Counts[types.ChangeBecameActive],
		RiskCounts:       snap.RiskCounts,
	}

	whois := &types.WhoisResult{Backfills: diffed.WhoisBackfills}
	if m.srcs.RDAP.IsConfigured() {
		whois.FeedResult = types.OKResult()
	} else {
		whois.FeedResult = types.NotConfiguredResult()
	}
	for _, ev := range diffed.Events {
		if ev.Type == types.ChangeWhoisChange {
			whois.Changes = append(whois.Changes, ev)
		}
	}
	dr.Whois = whois
}
