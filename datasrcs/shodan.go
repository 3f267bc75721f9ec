// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package datasrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

// Shodan is the adapter for the Shodan host API. Before the first lookup of
// a run it confirms the account still has query credits.
type Shodan struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter

	sync.Mutex
	checked    bool
	hasCredits bool
}

// NewShodan returns the adapter.
func NewShodan(cfg *config.Config, log *slog.Logger) *Shodan {
	return &Shodan{
		log:      log.With("name", "Shodan"),
		creds:    cfg.GetDataSourceConfig(config.SourceShodan),
		disabled: cfg.SourceDisabled(config.SourceShodan),
		rlimit:   ratelimit.New(1, ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (s *Shodan) String() string {
	return "Shodan"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (s *Shodan) IsConfigured() bool {
	return !s.disabled && s.creds.IsConfigured()
}

// HasCredits reports whether the account can still afford host lookups. The
// answer is cached for the lifetime of the adapter, which matches one run.
func (s *Shodan) HasCredits(ctx context.Context) bool {
	s.Lock()
	defer s.Unlock()

	if s.checked {
		return s.hasCredits
	}
	s.checked = true

	s.rlimit.Take()
	u := fmt.Sprintf("%s/api-info?key=%s", s.creds.BaseURL, s.creds.Key)
	page, err := http.RequestWebPage(ctx, u, nil, nil, nil)
	if err != nil {
		s.log.Debug("api-info request failed", "err", err)
		return false
	}

	var info struct {
		QueryCredits int `json:"query_credits"`
	}
	if err := json.Unmarshal([]byte(page), &info); err != nil {
		return false
	}
	s.hasCredits = info.QueryCredits > 0
	return s.hasCredits
}

// Host returns the exposure profile for one IP address.
func (s *Shodan) Host(ctx context.Context, ip string) (*types.ShodanHost, error) {
	s.rlimit.Take()

	u := fmt.Sprintf("%s/shodan/host/%s?key=%s", s.creds.BaseURL, ip, s.creds.Key)
	page, err := http.RequestWebPage(ctx, u, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Ports     []int               `json:"ports"`
		Hostnames []string            `json:"hostnames"`
		Org       string              `json:"org"`
		Vulns     map[string]struct{} `json:"vulns"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the Shodan response for %s: %v", ip, err)
	}

	host := &types.ShodanHost{
		IP:        ip,
		Ports:     result.Ports,
		Hostnames: result.Hostnames,
		Org:       result.Org,
	}
	for v := range result.Vulns {
		host.Vulns = append(host.Vulns, v)
	}
	sort.Ints(host.Ports)
	sort.Strings(host.Vulns)
	return host, nil
}
