// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
)

const outputDirName = "domainwatch"

// Brand holds the per-brand settings from the brand_monitoring section.
type Brand struct {
	LegitimateDomains []string `json:"legitimate_domains"`
}

// Config passes along the DomainWatch configuration settings and options.
type Config struct {
	sync.Mutex `json:"-"`

	// A Universally Unique Identifier (UUID) for the run
	UUID uuid.UUID `json:"-"`

	// Logger for error and status messages
	Log *slog.Logger `json:"-"`

	// Filepath of the configuration file
	Filepath string `json:"-"`

	// The directory that state, reports and caches are written under
	Dir string `json:"-"`

	// The FQDNs the organization protects
	MonitoredDomains []string `json:"monitored_domains"`

	// Per-seed lookalikes owned by the organization itself
	DefensiveDomains map[string][]string `json:"defensive_domains"`

	// Per-brand settings keyed by the brand base label
	BrandMonitoring map[string]*Brand `json:"brand_monitoring"`

	// Per-seed semantic lookalikes watched regardless of fuzzer output
	Watchlist map[string][]string `json:"watchlist"`

	// Address of the DNS resolver used for candidate resolution
	Resolver string `json:"resolver,omitempty"`

	// Only admit candidates that resolve to at least one A/AAAA/MX record
	RegisteredOnly bool `json:"registered_only,omitempty"`

	// Expand the seed base label across the abuse-heavy TLD list
	IncludeMaliciousTLDs bool `json:"include_malicious_tlds,omitempty"`

	// Bounded concurrency knobs
	ParkingWorkers int `json:"parking_workers,omitempty"`
	MaxDNSQueries  int `json:"max_dns_queries,omitempty"`

	// Per-feed cost controls
	VTPerRunCap      int `json:"vt_per_run_cap,omitempty"`
	VTPerMinute      int `json:"vt_per_minute,omitempty"`
	AbuseIPDBPerSeed int `json:"abuseipdb_ips_per_domain,omitempty"`
	AbuseIPDBBudget  int `json:"abuseipdb_daily_budget,omitempty"`
	HIBPPrefixCap    int `json:"hibp_prefix_cap,omitempty"`
	ShodanIPCap      int `json:"shodan_ip_cap,omitempty"`
	WhoisBackfillCap int `json:"whois_backfill_cap,omitempty"`

	// Feeds disabled through the optional settings file
	disabled map[string]bool

	// Credentials and endpoints for the feed adapters
	datasrcs map[string]*DataSourceConfig
}

// NewConfig returns a default configuration object.
func NewConfig() *Config {
	c := &Config{
		UUID:             uuid.New(),
		Log:              slog.New(slog.NewTextHandler(os.Stderr, nil)),
		DefensiveDomains: make(map[string][]string),
		BrandMonitoring:  make(map[string]*Brand),
		Watchlist:        make(map[string][]string),
		Resolver:         dns.DefaultResolverAddr,
		RegisteredOnly:   true,
		ParkingWorkers:   10,
		MaxDNSQueries:    50,
		VTPerRunCap:      50,
		VTPerMinute:      4,
		AbuseIPDBPerSeed: 5,
		AbuseIPDBBudget:  1000,
		HIBPPrefixCap:    20,
		ShodanIPCap:      3,
		WhoisBackfillCap: 10,
		disabled:         make(map[string]bool),
		datasrcs:         make(map[string]*DataSourceConfig),
	}

	if dir, err := homedir.Dir(); err == nil {
		c.Dir = filepath.Join(dir, outputDirName)
	}
	return c
}

// LoadConfig reads the JSON configuration file at the provided path. A missing
// or malformed file is a fatal condition for the run.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the configuration file: %v", err)
	}

	c := NewConfig()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse the configuration file %s: %v", path, err)
	}

	c.Filepath = path
	if err := c.CheckSettings(); err != nil {
		return nil, err
	}
	return c, nil
}

// CheckSettings validates the settings and fills any empty defaults.
func (c *Config) CheckSettings() error {
	if len(c.MonitoredDomains) == 0 {
		return fmt.Errorf("the configuration file does not contain any monitored domains")
	}

	for i, d := range c.MonitoredDomains {
		c.MonitoredDomains[i] = dns.Normalize(d)
	}
	if c.Resolver == "" {
		c.Resolver = dns.DefaultResolverAddr
	}
	if c.ParkingWorkers <= 0 {
		c.ParkingWorkers = 10
	}
	if c.WhoisBackfillCap <= 0 {
		c.WhoisBackfillCap = 10
	}
	return nil
}

// StateDir returns the directory holding per-seed snapshots.
func (c *Config) StateDir() string {
	return filepath.Join(c.Dir, "state")
}

// ReportsDir returns the directory holding dated run reports.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.Dir, "reports")
}

// WhoisDir returns the directory holding per-seed WHOIS caches.
func (c *Config) WhoisDir() string {
	return filepath.Join(c.Dir, "whois_state")
}

// IsDefensiveDomain returns true when the candidate appears on the seed's
// defensive allowlist. Matching is case-insensitive and exact.
func (c *Config) IsDefensiveDomain(seed, domain string) bool {
	c.Lock()
	defer c.Unlock()

	d := dns.Normalize(domain)
	for _, entry := range c.DefensiveDomains[dns.Normalize(seed)] {
		if dns.Normalize(entry) == d {
			return true
		}
	}
	return false
}

// LegitimateDomains returns the known-good domains for the seed's brand.
func (c *Config) LegitimateDomains(seed string) []string {
	c.Lock()
	defer c.Unlock()

	brand := dns.BaseLabel(seed)
	if b, found := c.BrandMonitoring[brand]; found {
		out := make([]string, len(b.LegitimateDomains))
		for i, d := range b.LegitimateDomains {
			out[i] = dns.Normalize(d)
		}
		return out
	}
	return nil
}

// WatchlistFor returns the semantic watchlist entries for the provided seed.
func (c *Config) WatchlistFor(seed string) []string {
	c.Lock()
	defer c.Unlock()

	var out []string
	for _, d := range c.Watchlist[dns.Normalize(seed)] {
		if n := dns.Normalize(d); n != "" && !strings.EqualFold(n, seed) {
			out = append(out, n)
		}
	}
	return out
}
