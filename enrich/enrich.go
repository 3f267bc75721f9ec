// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package enrich fans the candidate set of one monitored domain out to the
// threat-intel feeds. Stages run concurrently, each owns its rate rule, and
// a failed or unconfigured stage marks its slot in the report without ever
// failing the run.
package enrich

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/caffix/stringset"
	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/datasrcs"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/resources"
	"github.com/domainwatch/domainwatch/types"
	"golang.org/x/sync/errgroup"
)

// Admitter resolves a domain discovered mid-enrichment and, when registered,
// adds it to the candidate set. It returns nil for unregistered names and
// duplicates.
type Admitter func(ctx context.Context, domain, fuzzer string) *types.Candidate

// Input carries everything one enrichment pass needs for a seed.
type Input struct {
	Seed    string
	Label   string
	SeedIPs []string
	Current map[string]*types.Candidate
	Events  []*types.ChangeEvent
	Report  *types.DomainReport
	Admit   Admitter
}

// Enricher runs the stage table against one seed at a time. The VirusTotal
// budget spans the whole run, so a single Enricher serves every seed.
type Enricher struct {
	log  *slog.Logger
	cfg  *config.Config
	srcs *datasrcs.Sources

	sync.Mutex
	vtUsed    int
	vtStopped bool
}

// NewEnricher returns an Enricher bound to the feed registry.
func NewEnricher(cfg *config.Config, srcs *datasrcs.Sources, log *slog.Logger) *Enricher {
	return &Enricher{
		log:  log.With("component", "enrich"),
		cfg:  cfg,
		srcs: srcs,
	}
}

// Run executes the enrichment stages for one seed. The brand-impersonation
// stages run first since their discoveries join the candidate set consumed
// by every other stage; the remainder fan out concurrently.
func (e *Enricher) Run(ctx context.Context, in *Input) {
	e.brandCT(ctx, in)
	e.brandRF(ctx, in)

	// Guards the report and candidate fields the stages write into
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range []func(context.Context, *Input, *sync.Mutex){
		e.virusTotal,
		e.recordedFuture,
		e.abuseCH,
		e.abuseIPDB,
		e.hibp,
		e.shodan,
		e.ctLookalikes,
		e.intelX,
	} {
		stage := stage
		g.Go(func() error {
			stage(gctx, in, &mu)
			return nil
		})
	}
	_ = g.Wait()
}

// registered returns the registered candidates sorted by domain.
func registered(current map[string]*types.Candidate) []*types.Candidate {
	var out []*types.Candidate
	for _, c := range current {
		if c.Registered() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// active returns the registered candidates not known to be parked.
func active(current map[string]*types.Candidate) []*types.Candidate {
	var out []*types.Candidate
	for _, c := range registered(current) {
		if parked, known := c.ParkedBool(); !known || !parked {
			out = append(out, c)
		}
	}
	return out
}

// brandCT searches certificate transparency for fresh certificates carrying
// the brand label and admits newly surfaced registrable domains.
func (e *Enricher) brandCT(ctx context.Context, in *Input) {
	if !e.srcs.Crtsh.IsConfigured() {
		return
	}

	known := stringset.New(in.Seed)
	defer known.Close()
	for d := range in.Current {
		known.Insert(d)
	}

	certs, discovered, err := e.srcs.Crtsh.BrandCertificates(ctx, in.Label, known)
	if err != nil {
		// crt.sh failures degrade to empty results
		e.log.Debug("brand certificate search failed", "seed", in.Seed, "err", err)
		return
	}

	in.Report.CTLogs.Certificates = append(in.Report.CTLogs.Certificates, certs...)
	for _, d := range discovered {
		if cand := in.Admit(ctx, d, types.FuzzerCTBrand); cand != nil {
			in.Report.CTLogs.NewDomains = append(in.Report.CTLogs.NewDomains, d)
		}
	}
}

// brandRF asks Recorded Future for domains flagged as impersonating the brand.
func (e *Enricher) brandRF(ctx context.Context, in *Input) {
	if !e.srcs.RecordedFuture.IsConfigured() {
		return
	}

	domains, err := e.srcs.RecordedFuture.BrandDomains(ctx, in.Label)
	if err != nil {
		e.log.Debug("brand domain search failed", "seed", in.Seed, "err", err)
		return
	}

	for _, d := range domains {
		if _, exists := in.Current[d]; exists || d == in.Seed {
			continue
		}
		if cand := in.Admit(ctx, d, types.FuzzerRFBrand); cand != nil {
			in.Report.RecordedFuture.BrandDomains = append(in.Report.RecordedFuture.BrandDomains, d)
		}
	}
}

// virusTotal checks the candidates surfaced by new_registration and
// became_active events, bounded by the per-run cap. A 429 stops the stage
// for the rest of the run while keeping the lookups already performed.
func (e *Enricher) virusTotal(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.VTResult{}
	defer func() {
		mu.Lock()
		in.Report.VirusTotal = result
		mu.Unlock()
	}()

	if !e.srcs.VirusTotal.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}

	subjects := stringset.New()
	defer subjects.Close()
	for _, ev := range in.Events {
		if ev.Type == types.ChangeNewRegistration || ev.Type == types.ChangeBecameActive {
			subjects.Insert(ev.Domain)
		}
	}

	domains := subjects.Slice()
	sort.Strings(domains)

	result.FeedResult = types.OKResult()
	for i, d := range domains {
		if ctx.Err() != nil {
			result.FeedResult = types.FailedResult(ctx.Err().Error())
			return
		}

		e.Lock()
		stopped := e.vtStopped || e.vtUsed >= e.cfg.VTPerRunCap
		if !stopped {
			e.vtUsed++
		}
		e.Unlock()
		if stopped {
			result.RateLimited = true
			e.markVTRemaining(in, domains[i:], mu)
			return
		}

		rep, err := e.srcs.VirusTotal.DomainReputation(ctx, d)
		if err != nil {
			if http.IsRateLimited(err) {
				e.Lock()
				e.vtStopped = true
				e.Unlock()
				result.RateLimited = true
				e.markVTRemaining(in, domains[i:], mu)
				return
			}
			e.log.Debug("reputation lookup failed", "domain", d, "err", err)
			continue
		}
		result.Checked++

		mu.Lock()
		if cand := in.Current[d]; cand != nil {
			cand.VTReputation = rep
		}
		if rep.Malicious >= 1 {
			result.HighRisk = append(result.HighRisk, d)
		}
		mu.Unlock()
	}
}

// markVTRemaining records the rate-limit verdict on the candidates the
// stopped stage never reached, so risk classification falls back to the
// other signals.
func (e *Enricher) markVTRemaining(in *Input, domains []string, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()

	for _, d := range domains {
		if cand := in.Current[d]; cand != nil && cand.VTReputation == nil {
			cand.VTReputation = &types.VTReputation{Error: "rate limit"}
		}
	}
}

// recordedFuture scores every registered candidate plus the deduped set of
// their A records.
func (e *Enricher) recordedFuture(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.RFResult{}
	defer func() {
		mu.Lock()
		result.BrandDomains = append(result.BrandDomains, in.Report.RecordedFuture.BrandDomains...)
		in.Report.RecordedFuture = result
		mu.Unlock()
	}()

	if !e.srcs.RecordedFuture.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}

	cands := registered(in.Current)
	var domains []string
	for _, c := range cands {
		domains = append(domains, c.Domain)
	}

	scores, err := e.srcs.RecordedFuture.DomainRisks(ctx, domains)
	if err != nil {
		result.FeedResult = types.FailedResult(err.Error())
		return
	}
	result.FeedResult = types.OKResult()

	mu.Lock()
	for _, c := range cands {
		if score, found := scores[c.Domain]; found && score.Score > 0 {
			c.RFRiskScore = score.Score
			c.RFRiskLevel = types.RFRiskLevelFromScore(score.Score)
			c.RFRules = score.Rules
			result.DomainsScored++
		}
	}
	mu.Unlock()

	ips := stringset.New()
	defer ips.Close()
	for _, c := range cands {
		for _, ip := range c.DNSA {
			ips.Insert(ip)
		}
	}

	addrs := ips.Slice()
	sort.Strings(addrs)
	for _, ip := range addrs {
		if ctx.Err() != nil {
			return
		}
		score, err := e.srcs.RecordedFuture.IPRisk(ctx, ip)
		if err != nil {
			if http.IsRateLimited(err) {
				return
			}
			continue
		}
		if score.Score > 0 {
			result.IPsScored++
		}
	}
}

// abuseCH checks the active lookalikes against URLhaus and ThreatFox and
// matches their addresses against the Feodo botnet C2 blocklist.
func (e *Enricher) abuseCH(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.AbuseCHResult{}
	defer func() {
		mu.Lock()
		in.Report.AbuseCH = result
		mu.Unlock()
	}()

	if !e.srcs.AbuseCH.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}
	result.FeedResult = types.OKResult()

	ips := stringset.New()
	defer ips.Close()

	for _, c := range active(in.Current) {
		if ctx.Err() != nil {
			result.FeedResult = types.FailedResult(ctx.Err().Error())
			return
		}

		if urls, err := e.srcs.AbuseCH.URLhausHost(ctx, c.Domain); err == nil && len(urls) > 0 {
			result.URLhausMatches = append(result.URLhausMatches, c.Domain)
		}
		if iocs, err := e.srcs.AbuseCH.ThreatFoxIOC(ctx, c.Domain); err == nil && len(iocs) > 0 {
			result.ThreatFoxMatches = append(result.ThreatFoxMatches, c.Domain)
		}
		for _, ip := range c.DNSA {
			ips.Insert(ip)
		}
	}

	addrs := ips.Slice()
	sort.Strings(addrs)
	if matches, err := e.srcs.AbuseCH.FeodoMatch(ctx, addrs); err == nil {
		result.FeodoMatches = matches
	}
}

// abuseIPDB checks the resolved addresses of the active lookalikes, at most
// five per domain, until the daily budget runs out.
func (e *Enricher) abuseIPDB(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.AbuseIPDBResult{}
	defer func() {
		mu.Lock()
		in.Report.AbuseIPDB = result
		mu.Unlock()
	}()

	if !e.srcs.AbuseIPDB.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}
	result.FeedResult = types.OKResult()

	perSeed := e.cfg.AbuseIPDBPerSeed
	if perSeed <= 0 {
		perSeed = 5
	}

	seen := stringset.New()
	defer seen.Close()

	for _, c := range active(in.Current) {
		count := 0
		for _, ip := range c.DNSA {
			if count >= perSeed {
				break
			}
			if seen.Has(ip) {
				continue
			}
			seen.Insert(ip)
			count++

			if ctx.Err() != nil {
				result.FeedResult = types.FailedResult(ctx.Err().Error())
				return
			}
			check, err := e.srcs.AbuseIPDB.Check(ctx, ip)
			if err != nil {
				if http.IsRateLimited(err) {
					return
				}
				continue
			}
			result.Checks = append(result.Checks, *check)
		}
	}
}

// hibp probes common role addresses at the seed domain for breach exposure.
func (e *Enricher) hibp(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.HIBPResult{}
	defer func() {
		mu.Lock()
		in.Report.HIBP = result
		mu.Unlock()
	}()

	if !e.srcs.HIBP.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}
	result.FeedResult = types.OKResult()

	limit := e.cfg.HIBPPrefixCap
	if limit <= 0 {
		limit = 20
	}

	prefixes := resources.EmailPrefixes()
	if len(prefixes) > limit {
		prefixes = prefixes[:limit]
	}

	for _, prefix := range prefixes {
		if ctx.Err() != nil {
			result.FeedResult = types.FailedResult(ctx.Err().Error())
			return
		}

		email := prefix + "@" + in.Seed
		breaches, err := e.srcs.HIBP.BreachedAccount(ctx, email)
		if err != nil {
			if http.IsRateLimited(err) {
				return
			}
			continue
		}
		if len(breaches) > 0 {
			result.Accounts = append(result.Accounts, types.HIBPAccount{
				Email:    email,
				Breaches: breaches,
			})
		}
	}
}

// shodan profiles the seed's own infrastructure, at most three addresses,
// and only while the account still has query credits.
func (e *Enricher) shodan(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.ShodanResult{}
	defer func() {
		mu.Lock()
		in.Report.Shodan = result
		mu.Unlock()
	}()

	if !e.srcs.Shodan.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		return
	}
	if !e.srcs.Shodan.HasCredits(ctx) {
		result.FeedResult = types.FailedResult("query credits exhausted")
		return
	}
	result.FeedResult = types.OKResult()

	limit := e.cfg.ShodanIPCap
	if limit <= 0 {
		limit = 3
	}

	ips := in.SeedIPs
	if len(ips) > limit {
		ips = ips[:limit]
	}

	for _, ip := range ips {
		if ctx.Err() != nil {
			result.FeedResult = types.FailedResult(ctx.Err().Error())
			return
		}
		host, err := e.srcs.Shodan.Host(ctx, ip)
		if err != nil {
			continue
		}
		if len(host.Ports) > 0 || len(host.Vulns) > 0 {
			result.Hosts = append(result.Hosts, *host)
		}
	}
}

// ctLookalikes pulls the last week of certificates for the seed and every
// registered lookalike. crt.sh errors degrade to empty results.
func (e *Enricher) ctLookalikes(ctx context.Context, in *Input, mu *sync.Mutex) {
	if !e.srcs.Crtsh.IsConfigured() {
		return
	}

	mu.Lock()
	in.Report.CTLogs.FeedResult = types.OKResult()
	mu.Unlock()

	subjects := []string{in.Seed}
	for _, c := range registered(in.Current) {
		subjects = append(subjects, c.Domain)
	}

	for _, d := range subjects {
		if ctx.Err() != nil {
			return
		}
		certs, err := e.srcs.Crtsh.SeedCertificates(ctx, d)
		if err != nil {
			e.log.Debug("certificate lookup failed", "domain", d, "err", err)
			continue
		}
		mu.Lock()
		in.Report.CTLogs.Certificates = append(in.Report.CTLogs.Certificates, certs...)
		mu.Unlock()
	}
}

// Buckets whose records count as dark-web or paste-site exposure.
var darkWebBuckets = []string{"darknet", "pastes", "leaks", "dumpster"}

// intelX searches Intelligence X for seed mentions and collects phonebook
// selectors. Records from leak and darknet buckets double as dark-web
// findings in the report.
func (e *Enricher) intelX(ctx context.Context, in *Input, mu *sync.Mutex) {
	result := &types.IntelXResult{}
	dark := &types.DarkWebResult{}
	defer func() {
		mu.Lock()
		in.Report.IntelX = result
		in.Report.DarkWeb = dark
		mu.Unlock()
	}()

	if !e.srcs.IntelX.IsConfigured() {
		result.FeedResult = types.NotConfiguredResult()
		dark.FeedResult = types.NotConfiguredResult()
		return
	}

	records, err := e.srcs.IntelX.Search(ctx, in.Seed)
	if err != nil {
		result.FeedResult = types.FailedResult(err.Error())
		dark.FeedResult = result.FeedResult
		return
	}
	result.FeedResult = types.OKResult()
	dark.FeedResult = types.OKResult()
	result.Records = records

	for _, rec := range records {
		bucket := strings.ToLower(rec.Bucket)
		for _, mark := range darkWebBuckets {
			if strings.Contains(bucket, mark) {
				dark.Findings = append(dark.Findings, types.DarkWebFinding{
					Source: "intelx",
					Bucket: rec.Bucket,
					Title:  rec.Name,
					Date:   rec.Date,
					Ref:    rec.SystemID,
				})
				break
			}
		}
	}

	if selectors, err := e.srcs.IntelX.Phonebook(ctx, in.Seed); err == nil {
		result.Selectors = selectors
	}
}
