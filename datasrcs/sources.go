// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package datasrcs holds one adapter per upstream feed. Every adapter owns
// its credentials, base URL and rate limiter, decodes its own wire format,
// and reports availability through IsConfigured. Nothing outside this
// package constructs raw requests against a feed.
package datasrcs

import (
	"log/slog"
	"sort"

	"github.com/domainwatch/domainwatch/config"
)

// Sources is the registry of feed adapters, constructed once at startup and
// passed through the orchestrator. There are no package-level clients.
type Sources struct {
	VirusTotal     *VirusTotal
	RecordedFuture *RecordedFuture
	AbuseCH        *AbuseCH
	AbuseIPDB      *AbuseIPDB
	HIBP           *HIBP
	Shodan         *Shodan
	Crtsh          *Crtsh
	IntelX         *IntelX
	URLScan        *URLScan
	RDAP           *RDAP
	IPAPI          *IPAPI
}

// NewSources returns the registry with every adapter initialized from the
// configuration. Adapters without credentials still exist; they simply
// answer false to IsConfigured.
func NewSources(cfg *config.Config, log *slog.Logger) *Sources {
	l := log.WithGroup("datasrcs")

	return &Sources{
		VirusTotal:     NewVirusTotal(cfg, l),
		RecordedFuture: NewRecordedFuture(cfg, l),
		AbuseCH:        NewAbuseCH(cfg, l),
		AbuseIPDB:      NewAbuseIPDB(cfg, l),
		HIBP:           NewHIBP(cfg, l),
		Shodan:         NewShodan(cfg, l),
		Crtsh:          NewCrtsh(cfg, l),
		IntelX:         NewIntelX(cfg, l),
		URLScan:        NewURLScan(cfg, l),
		RDAP:           NewRDAP(cfg, l),
		IPAPI:          NewIPAPI(cfg, l),
	}
}

type source interface {
	String() string
	IsConfigured() bool
}

// Configured returns the names of the feeds ready for use, sorted for output.
func (s *Sources) Configured() []string {
	all := []source{
		s.VirusTotal, s.RecordedFuture, s.AbuseCH, s.AbuseIPDB, s.HIBP,
		s.Shodan, s.Crtsh, s.IntelX, s.URLScan, s.RDAP, s.IPAPI,
	}

	var names []string
	for _, src := range all {
		if src.IsConfigured() {
			names = append(names, src.String())
		}
	}
	sort.Strings(names)
	return names
}
