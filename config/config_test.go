// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"monitored_domains": ["Acme.Com", "widget.io"],
		"defensive_domains": {
			"acme.com": ["acme-careers.com"]
		},
		"brand_monitoring": {
			"acme": {"legitimate_domains": ["acme.org"]}
		},
		"watchlist": {
			"acme.com": ["acme-support.com"]
		},
		"include_malicious_tlds": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme.com", "widget.io"}, cfg.MonitoredDomains)
	assert.True(t, cfg.IncludeMaliciousTLDs)
	assert.True(t, cfg.IsDefensiveDomain("acme.com", "ACME-Careers.Com"))
	assert.False(t, cfg.IsDefensiveDomain("acme.com", "acrne.com"))
	assert.Equal(t, []string{"acme.org"}, cfg.LegitimateDomains("acme.com"))
	assert.Equal(t, []string{"acme-support.com"}, cfg.WatchlistFor("acme.com"))
}

func TestLoadConfigMissingFileIsFatal(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigRequiresMonitoredDomains(t *testing.T) {
	path := writeFile(t, "config.json", `{"monitored_domains": []}`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestCheckSettingsFillsDefaults(t *testing.T) {
	c := &Config{MonitoredDomains: []string{"acme.com"}}
	require.NoError(t, c.CheckSettings())

	assert.NotEmpty(t, c.Resolver)
	assert.Equal(t, 10, c.ParkingWorkers)
	assert.Equal(t, 10, c.WhoisBackfillCap)
}

func TestSetupDataSourcesFromEnvironment(t *testing.T) {
	t.Setenv("VT_API_KEY", "vt-secret")
	t.Setenv("WEBEX_TOKEN", "webex-secret")
	t.Setenv("WEBEX_ROOM_ID", "room-1")
	t.Setenv("SHODAN_API_KEY", "")

	c := NewConfig()
	c.SetupDataSources()

	assert.True(t, c.IsConfigured(SourceVirusTotal))
	assert.False(t, c.IsConfigured(SourceShodan))

	webex := c.GetDataSourceConfig(SourceWebex)
	require.NotNil(t, webex)
	assert.Equal(t, "webex-secret", webex.Key)
	assert.Equal(t, "room-1", webex.Destination)

	// Feeds without credentials stay usable
	assert.True(t, c.IsConfigured(SourceCrtsh))
	assert.True(t, c.IsConfigured(SourceRDAP))
	assert.NotEmpty(t, c.GetDataSourceConfig(SourceCrtsh).BaseURL)
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("VT_API_KEY", "vt-secret")

	path := writeFile(t, "settings.ini", `
[caps]
vt_per_run = 25
abuseipdb_ips_per_domain = 3
whois_backfill = 4

[rate_limits]
vt_per_minute = 2

[disabled]
data_source = virustotal
data_source = shodan
`)

	c := NewConfig()
	c.SetupDataSources()
	require.NoError(t, c.LoadSettings(path))

	assert.Equal(t, 25, c.VTPerRunCap)
	assert.Equal(t, 3, c.AbuseIPDBPerSeed)
	assert.Equal(t, 4, c.WhoisBackfillCap)
	assert.Equal(t, 2, c.VTPerMinute)

	// The key is present but settings disabled the feed
	assert.True(t, c.SourceDisabled(SourceVirusTotal))
	assert.False(t, c.IsConfigured(SourceVirusTotal))
	assert.True(t, c.SourceDisabled(SourceShodan))
}

func TestLoadSettingsMissingFileIsNotAnError(t *testing.T) {
	c := NewConfig()
	assert.NoError(t, c.LoadSettings(filepath.Join(t.TempDir(), "settings.ini")))
}
