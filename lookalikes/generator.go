// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package lookalikes generates candidate domains that resemble a monitored
// seed through string mutation and TLD expansion. Generation is pure string
// work; resolution and admission filtering happen downstream.
package lookalikes

import (
	"log/slog"

	"github.com/caffix/stringset"
	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/resources"
	"github.com/domainwatch/domainwatch/types"
)

// Options control which candidate sources contribute to generation.
type Options struct {
	// Expand the base label across the abuse-heavy TLD list
	IncludeMaliciousTLDs bool

	// Additional names joined to the output with the original fuzzer tag,
	// e.g. the seed's semantic watchlist
	Watchlist []string
}

// Generator produces lookalike candidates for one monitored domain.
type Generator struct {
	seed   string
	label  string
	suffix string
	log    *slog.Logger
}

// NewGenerator returns a Generator for the provided seed domain.
func NewGenerator(seed string, log *slog.Logger) *Generator {
	label, suffix := dns.SplitDomain(seed)

	return &Generator{
		seed:   dns.Normalize(seed),
		label:  label,
		suffix: suffix,
		log:    log.With("seed", seed),
	}
}

// Candidates returns the deduplicated candidate set for the seed. The seed
// itself is never included. When several fuzzers produce the same FQDN, the
// first fuzzer in generation order claims it.
func (g *Generator) Candidates(opts *Options) []*types.Candidate {
	if opts == nil {
		opts = new(Options)
	}
	if g.label == "" || g.suffix == "" {
		g.log.Warn("seed could not be split into label and suffix")
		return nil
	}

	seen := stringset.New(g.seed)
	defer seen.Close()

	var out []*types.Candidate
	add := func(domain, fuzzer string) {
		d := dns.Normalize(domain)
		if d == "" || seen.Has(d) {
			return
		}
		seen.Insert(d)
		out = append(out, &types.Candidate{Domain: d, Fuzzer: fuzzer})
	}

	type labelFuzzer struct {
		name string
		fn   func(string) []string
	}
	fuzzers := []labelFuzzer{
		{types.FuzzerHomoglyph, homoglyphLabels},
		{types.FuzzerInsertion, insertionLabels},
		{types.FuzzerOmission, omissionLabels},
		{types.FuzzerTransposition, transpositionLabels},
		{types.FuzzerRepetition, repetitionLabels},
		{types.FuzzerReplacement, replacementLabels},
		{types.FuzzerVowelSwap, vowelSwapLabels},
		{types.FuzzerHyphenation, hyphenationLabels},
		{types.FuzzerSubdomain, subdomainLabels},
		{types.FuzzerBitsquatting, bitsquattingLabels},
	}
	for _, f := range fuzzers {
		for _, label := range f.fn(g.label) {
			add(label+"."+g.suffix, f.name)
		}
	}

	for _, tld := range resources.CommonTLDs() {
		if tld != g.suffix {
			add(g.label+"."+tld, types.FuzzerTLDSwap)
		}
	}

	if opts.IncludeMaliciousTLDs {
		for _, tld := range resources.MaliciousTLDs() {
			if tld != g.suffix {
				add(g.label+"."+tld, types.FuzzerTLDSwap)
			}
		}
	}

	for _, name := range opts.Watchlist {
		add(name, types.FuzzerOriginal)
	}

	g.log.Debug("candidate generation finished", "count", len(out))
	return out
}

// Seed returns the normalized monitored domain this generator mutates.
func (g *Generator) Seed() string {
	return g.seed
}

// BaseLabel returns the brand label of the seed.
func (g *Generator) BaseLabel() string {
	return g.label
}
