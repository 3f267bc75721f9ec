// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"strings"

	"github.com/go-ini/ini"
)

// Canonical feed adapter names used throughout the system.
const (
	SourceVirusTotal     = "virustotal"
	SourceRecordedFuture = "recordedfuture"
	SourceAbuseCH        = "abusech"
	SourceAbuseIPDB      = "abuseipdb"
	SourceHIBP           = "hibp"
	SourceShodan         = "shodan"
	SourceCrtsh          = "crtsh"
	SourceIntelX         = "intelx"
	SourceURLScan        = "urlscan"
	SourceRDAP           = "rdap"
	SourceIPAPI          = "ipapi"
	SourceWebex          = "webex"
)

// DataSourceConfig contains the base URL and credentials for one feed.
type DataSourceConfig struct {
	Name    string
	BaseURL string
	Key     string
	Secret  string
	// Destination identifier for notification feeds
	Destination string
	// TTL in minutes for cached responses; zero uses the adapter default
	TTL int
}

// IsConfigured returns true when the feed has the credential it requires.
func (dsc *DataSourceConfig) IsConfigured() bool {
	return dsc != nil && dsc.Key != ""
}

// The flat table of recognized environment variables. Absence of a key
// disables the corresponding feed rather than failing the run.
var envTable = map[string]string{
	SourceVirusTotal:     "VT_API_KEY",
	SourceRecordedFuture: "RF_API_KEY",
	SourceAbuseIPDB:      "ABUSEIPDB_API_KEY",
	SourceHIBP:           "HIBP_API_KEY",
	SourceShodan:         "SHODAN_API_KEY",
	SourceIntelX:         "INTELX_API_KEY",
	SourceURLScan:        "URLSCAN_API_KEY",
	SourceWebex:          "WEBEX_TOKEN",
}

// Feeds reachable without credentials still get registry entries so base
// URLs remain centralized and overridable.
var defaultBaseURLs = map[string]string{
	SourceVirusTotal:     "https://www.virustotal.com/api/v3",
	SourceRecordedFuture: "https://api.recordedfuture.com/v2",
	SourceAbuseCH:        "https://urlhaus-api.abuse.ch/v1",
	SourceAbuseIPDB:      "https://api.abuseipdb.com/api/v2",
	SourceHIBP:           "https://haveibeenpwned.com/api/v3",
	SourceShodan:         "https://api.shodan.io",
	SourceCrtsh:          "https://crt.sh",
	SourceIntelX:         "https://2.intelx.io",
	SourceURLScan:        "https://urlscan.io/api/v1",
	SourceRDAP:           "https://rdap.org",
	SourceIPAPI:          "https://ipapi.co",
	SourceWebex:          "https://webexapis.com/v1",
}

// SetupDataSources populates the feed registry from the environment table.
// godotenv has already folded any .env file into the process environment by
// the time this executes.
func (c *Config) SetupDataSources() {
	c.Lock()
	defer c.Unlock()

	for name, base := range defaultBaseURLs {
		dsc := &DataSourceConfig{
			Name:    name,
			BaseURL: base,
		}
		if evar, found := envTable[name]; found {
			dsc.Key = strings.TrimSpace(os.Getenv(evar))
		}
		c.datasrcs[name] = dsc
	}

	// crt.sh, abuse.ch, RDAP and ipapi require no credential
	for _, name := range []string{SourceCrtsh, SourceAbuseCH, SourceRDAP, SourceIPAPI} {
		if dsc := c.datasrcs[name]; dsc.Key == "" {
			dsc.Key = "-"
		}
	}

	if dsc := c.datasrcs[SourceWebex]; dsc != nil {
		dsc.Destination = strings.TrimSpace(os.Getenv("WEBEX_ROOM_ID"))
	}
}

// GetDataSourceConfig returns the registry entry for the named feed.
func (c *Config) GetDataSourceConfig(name string) *DataSourceConfig {
	c.Lock()
	defer c.Unlock()

	idx := strings.ToLower(strings.TrimSpace(name))
	if idx == "" {
		return nil
	}
	return c.datasrcs[idx]
}

// AddDataSourceConfig inserts or replaces a registry entry, primarily for tests.
func (c *Config) AddDataSourceConfig(dsc *DataSourceConfig) {
	c.Lock()
	defer c.Unlock()

	if dsc == nil || dsc.Name == "" {
		return
	}
	c.datasrcs[strings.ToLower(dsc.Name)] = dsc
}

// IsConfigured returns true when the named feed is enabled and has credentials.
func (c *Config) IsConfigured(name string) bool {
	if c.SourceDisabled(name) {
		return false
	}
	return c.GetDataSourceConfig(name).IsConfigured()
}

// SourceDisabled returns true when the feed was disabled through settings.
func (c *Config) SourceDisabled(name string) bool {
	c.Lock()
	defer c.Unlock()

	return c.disabled[strings.ToLower(strings.TrimSpace(name))]
}

// LoadSettings applies the optional INI overrides file: rate limits, cost
// caps and disabled feeds. A missing file leaves the defaults untouched.
func (c *Config) LoadSettings(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:  true,
		AllowShadows: true,
	}, path)
	if err != nil {
		return err
	}

	if sec, err := cfg.GetSection("caps"); err == nil {
		assignInt(sec, "vt_per_run", &c.VTPerRunCap)
		assignInt(sec, "abuseipdb_ips_per_domain", &c.AbuseIPDBPerSeed)
		assignInt(sec, "abuseipdb_daily_budget", &c.AbuseIPDBBudget)
		assignInt(sec, "hibp_prefixes", &c.HIBPPrefixCap)
		assignInt(sec, "shodan_ips", &c.ShodanIPCap)
		assignInt(sec, "whois_backfill", &c.WhoisBackfillCap)
	}
	if sec, err := cfg.GetSection("rate_limits"); err == nil {
		assignInt(sec, "vt_per_minute", &c.VTPerMinute)
		assignInt(sec, "max_dns_queries", &c.MaxDNSQueries)
	}
	if sec, err := cfg.GetSection("disabled"); err == nil {
		c.Lock()
		for _, name := range sec.Key("data_source").ValueWithShadows() {
			c.disabled[strings.ToLower(strings.TrimSpace(name))] = true
		}
		c.Unlock()
	}
	return nil
}

func assignInt(sec *ini.Section, key string, target *int) {
	if sec.HasKey(key) {
		if v, err := sec.Key(key).Int(); err == nil && v > 0 {
			*target = v
		}
	}
}
