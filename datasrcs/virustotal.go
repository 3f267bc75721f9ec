// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package datasrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

// VirusTotal is the adapter for the VirusTotal v3 domain reputation API.
type VirusTotal struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
}

// NewVirusTotal returns the adapter honoring the public API quota of four
// requests per minute unless the configuration raises it.
func NewVirusTotal(cfg *config.Config, log *slog.Logger) *VirusTotal {
	perMinute := cfg.VTPerMinute
	if perMinute <= 0 {
		perMinute = 4
	}

	return &VirusTotal{
		log:      log.With("name", "VirusTotal"),
		creds:    cfg.GetDataSourceConfig(config.SourceVirusTotal),
		disabled: cfg.SourceDisabled(config.SourceVirusTotal),
		rlimit:   ratelimit.New(perMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (v *VirusTotal) String() string {
	return "VirusTotal"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (v *VirusTotal) IsConfigured() bool {
	return !v.disabled && v.creds.IsConfigured()
}

// DomainReputation returns the analysis counts for the provided domain. A
// rate-limited response surfaces as a RateLimitError so the caller can stop
// the stage while keeping prior results.
func (v *VirusTotal) DomainReputation(ctx context.Context, domain string) (*types.VTReputation, error) {
	v.rlimit.Take()

	u := fmt.Sprintf("%s/domains/%s", v.creds.BaseURL, domain)
	headers := map[string]string{"x-apikey": v.creds.Key}
	page, err := http.RequestWebPage(ctx, u, nil, headers, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Attributes struct {
				Stats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
					Undetected int `json:"undetected"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the VirusTotal response for %s: %v", domain, err)
	}

	stats := result.Data.Attributes.Stats
	rep := &types.VTReputation{
		Malicious:  stats.Malicious,
		Suspicious: stats.Suspicious,
		Harmless:   stats.Harmless,
		Undetected: stats.Undetected,
	}
	switch {
	case rep.Malicious >= 3:
		rep.ThreatLevel = "high"
	case rep.Malicious >= 1 || rep.Suspicious >= 2:
		rep.ThreatLevel = "medium"
	default:
		rep.ThreatLevel = "low"
	}
	return rep, nil
}
