// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package parking decides whether a live domain serves a registrar or broker
// placeholder page. The cascade runs nameserver matching, parking IP ranges,
// URLScan categories and finally an HTTP content probe; the first definitive
// answer wins.
package parking

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/resources"
	"github.com/domainwatch/domainwatch/types"
	"github.com/yl2chen/cidranger"
)

// URLScanner is the slice of the URLScan adapter the cascade depends on.
type URLScanner interface {
	IsConfigured() bool
	Categories(ctx context.Context, domain string) ([]string, error)
}

// Verdict is the outcome of classifying one domain.
type Verdict struct {
	Parked     bool
	Known      bool // false when every tier failed to reach a decision
	Provider   string
	Confidence string
	Indicators []string
	FinalURL   string
}

// Apply copies the verdict onto the candidate.
func (v *Verdict) Apply(c *types.Candidate) {
	if !v.Known {
		c.Parked = nil
		c.ParkingIndicators = v.Indicators
		return
	}
	c.SetParked(v.Parked)
	c.ParkingProvider = v.Provider
	c.ParkingConfidence = v.Confidence
	c.ParkingIndicators = v.Indicators
	c.ParkingFinalURL = v.FinalURL
}

var urlscanParkedCategories = []string{
	"parked", "parking", "domain parking", "for sale",
	"placeholder", "coming soon", "under construction",
}

const urlscanCacheTTL = 24 * time.Hour

type cachedVerdict struct {
	verdict *Verdict
	expires time.Time
}

// Classifier runs the parking cascade. It is safe for concurrent use; all
// per-domain state stays on the stack.
type Classifier struct {
	log        *slog.Logger
	nsSuffixes []string
	ranger     cidranger.Ranger
	urlscan    URLScanner
	prober     *prober

	cacheLock sync.Mutex
	cache     map[string]cachedVerdict
	now       func() time.Time
}

// NewClassifier returns a Classifier loaded with the embedded parking data.
// The URLScan dependency may be nil, in which case that tier is skipped.
func NewClassifier(urlscan URLScanner, log *slog.Logger) *Classifier {
	ranger := cidranger.NewPCTrieRanger()
	for _, cidr := range resources.ParkingIPRanges() {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			_ = ranger.Insert(cidranger.NewBasicRangerEntry(*network))
		}
	}

	return &Classifier{
		log:        log.With("component", "parking"),
		nsSuffixes: resources.ParkingNameservers(),
		ranger:     ranger,
		urlscan:    urlscan,
		prober:     newProber(),
		cache:      make(map[string]cachedVerdict),
		now:        time.Now,
	}
}

// Classify runs the cascade for one candidate, using its resolved records.
func (c *Classifier) Classify(ctx context.Context, cand *types.Candidate) *Verdict {
	if v := c.matchNameservers(cand.DNSNS); v != nil {
		return v
	}
	if v := c.matchIPRanges(cand.DNSA); v != nil {
		return v
	}
	if v := c.matchURLScan(ctx, cand.Domain); v != nil {
		return v
	}
	return c.prober.probe(ctx, cand.Domain)
}

// ClassifyAll classifies the batch with the provided worker count and writes
// each verdict onto its candidate.
func (c *Classifier) ClassifyAll(ctx context.Context, cands []*types.Candidate, workers int) {
	if workers <= 0 {
		workers = 10
	}

	jobs := make(chan *types.Candidate)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				c.Classify(ctx, cand).Apply(cand)
			}
		}()
	}

loop:
	for _, cand := range cands {
		if !cand.Registered() {
			continue
		}
		select {
		case <-ctx.Done():
			break loop
		case jobs <- cand:
		}
	}
	close(jobs)
	wg.Wait()
}

// matchNameservers is the first tier: a NS equal to or under a known parking
// nameserver domain is a definitive parked verdict.
func (c *Classifier) matchNameservers(nameservers []string) *Verdict {
	for _, ns := range nameservers {
		for _, suffix := range c.nsSuffixes {
			if dns.IsSubdomainOf(ns, suffix) {
				return &Verdict{
					Parked:     true,
					Known:      true,
					Provider:   providerFromHost(suffix),
					Confidence: types.ConfidenceHigh,
					Indicators: []string{"ns:" + ns},
				}
			}
		}
	}
	return nil
}

// matchIPRanges checks resolved addresses against the parking lander ranges.
func (c *Classifier) matchIPRanges(addrs []string) *Verdict {
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		if contains, err := c.ranger.Contains(ip); err == nil && contains {
			return &Verdict{
				Parked:     true,
				Known:      true,
				Confidence: types.ConfidenceMedium,
				Indicators: []string{"ip-range:" + addr},
			}
		}
	}
	return nil
}

// matchURLScan consults existing public URLScan results for the domain.
// Verdicts are memoized for 24 hours to avoid repeat queries within a run
// and across seeds sharing candidates.
func (c *Classifier) matchURLScan(ctx context.Context, domain string) *Verdict {
	if c.urlscan == nil || !c.urlscan.IsConfigured() {
		return nil
	}

	c.cacheLock.Lock()
	if entry, found := c.cache[domain]; found && c.now().Before(entry.expires) {
		c.cacheLock.Unlock()
		return entry.verdict
	}
	c.cacheLock.Unlock()

	categories, err := c.urlscan.Categories(ctx, domain)
	if err != nil {
		c.log.Debug("urlscan tier failed", "domain", domain, "err", err)
		return nil
	}

	var verdict *Verdict
	for _, category := range categories {
		cat := strings.ToLower(category)
		for _, parked := range urlscanParkedCategories {
			if cat == parked {
				verdict = &Verdict{
					Parked:     true,
					Known:      true,
					Confidence: types.ConfidenceHigh,
					Indicators: []string{"urlscan-category:" + cat},
				}
			}
		}
	}
	// A scan categorized as real content is a definitive not-parked answer
	if verdict == nil && len(categories) > 0 {
		verdict = &Verdict{
			Parked:     false,
			Known:      true,
			Confidence: types.ConfidenceMedium,
			Indicators: []string{"urlscan-category:" + strings.ToLower(categories[0])},
		}
	}

	if verdict != nil {
		c.cacheLock.Lock()
		c.cache[domain] = cachedVerdict{
			verdict: verdict,
			expires: c.now().Add(urlscanCacheTTL),
		}
		c.cacheLock.Unlock()
	}
	return verdict
}
