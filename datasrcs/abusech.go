// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package datasrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caffix/stringset"
	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"go.uber.org/ratelimit"
)

const (
	threatFoxBaseURL = "https://threatfox-api.abuse.ch/api/v1"
	feodoBlocklist   = "https://feodotracker.abuse.ch/downloads/ipblocklist.json"
	feodoCacheTTL    = 24 * time.Hour
)

// AbuseCH queries the three abuse.ch feeds. URLhaus and ThreatFox are hit per
// lookup while the Feodo blocklist is downloaded once a day and matched locally.
type AbuseCH struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter

	sync.Mutex
	feodoIPs     *stringset.Set
	feodoFetched time.Time
}

// NewAbuseCH returns the adapter. abuse.ch requires no credential.
func NewAbuseCH(cfg *config.Config, log *slog.Logger) *AbuseCH {
	return &AbuseCH{
		log:      log.With("name", "AbuseCH"),
		creds:    cfg.GetDataSourceConfig(config.SourceAbuseCH),
		disabled: cfg.SourceDisabled(config.SourceAbuseCH),
		rlimit:   ratelimit.New(5, ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (a *AbuseCH) String() string {
	return "AbuseCH"
}

// IsConfigured returns true unless the feed was disabled through settings.
func (a *AbuseCH) IsConfigured() bool {
	return !a.disabled && a.creds.IsConfigured()
}

// URLhausHost returns the malware distribution URLs known for the host.
func (a *AbuseCH) URLhausHost(ctx context.Context, host string) ([]string, error) {
	a.rlimit.Take()

	form := url.Values{}
	form.Set("host", host)
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	page, err := http.RequestWebPage(ctx, a.creds.BaseURL+"/host/", strings.NewReader(form.Encode()), headers, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		QueryStatus string `json:"query_status"`
		URLs        []struct {
			URL       string `json:"url"`
			URLStatus string `json:"url_status"`
		} `json:"urls"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the URLhaus response for %s: %v", host, err)
	}
	if result.QueryStatus != "ok" {
		// "no_results" is the common verdict and not an error
		return nil, nil
	}

	var urls []string
	for _, u := range result.URLs {
		urls = append(urls, u.URL)
	}
	return urls, nil
}

// ThreatFoxIOC returns the IOC identifiers matching the provided domain or IP.
func (a *AbuseCH) ThreatFoxIOC(ctx context.Context, term string) ([]string, error) {
	a.rlimit.Take()

	body, err := json.Marshal(map[string]string{
		"query":       "search_ioc",
		"search_term": term,
	})
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	page, err := http.RequestWebPage(ctx, threatFoxBaseURL+"/", strings.NewReader(string(body)), headers, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		QueryStatus string `json:"query_status"`
		Data        []struct {
			IOC     string `json:"ioc"`
			Malware string `json:"malware_printable"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the ThreatFox response for %s: %v", term, err)
	}
	if result.QueryStatus != "ok" {
		return nil, nil
	}

	var iocs []string
	for _, d := range result.Data {
		iocs = append(iocs, d.IOC+" ("+d.Malware+")")
	}
	return iocs, nil
}

// FeodoMatch reports which of the provided IPs appear on the Feodo Tracker
// botnet C2 blocklist. The list is cached for a day across calls.
func (a *AbuseCH) FeodoMatch(ctx context.Context, ips []string) ([]string, error) {
	if len(ips) == 0 {
		return nil, nil
	}
	if err := a.refreshFeodo(ctx); err != nil {
		return nil, err
	}

	a.Lock()
	defer a.Unlock()

	var matches []string
	for _, ip := range ips {
		if a.feodoIPs.Has(ip) {
			matches = append(matches, ip)
		}
	}
	return matches, nil
}

func (a *AbuseCH) refreshFeodo(ctx context.Context) error {
	a.Lock()
	fresh := a.feodoIPs != nil && time.Since(a.feodoFetched) < feodoCacheTTL
	a.Unlock()
	if fresh {
		return nil
	}

	a.rlimit.Take()
	page, err := http.RequestWebPage(ctx, feodoBlocklist, nil, nil, nil)
	if err != nil {
		return err
	}

	var entries []struct {
		IPAddress string `json:"ip_address"`
	}
	if err := json.Unmarshal([]byte(page), &entries); err != nil {
		return fmt.Errorf("failed to decode the Feodo blocklist: %v", err)
	}

	set := stringset.New()
	for _, e := range entries {
		set.Insert(e.IPAddress)
	}

	a.Lock()
	if a.feodoIPs != nil {
		a.feodoIPs.Close()
	}
	a.feodoIPs = set
	a.feodoFetched = time.Now()
	a.Unlock()
	return nil
}
