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

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"go.uber.org/ratelimit"
)

// URLScan searches existing public urlscan.io results. No new scans are
// submitted; candidate domains should not be tipped off by active scanning
// from a known service.
type URLScan struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
}

// NewURLScan returns the adapter.
func NewURLScan(cfg *config.Config, log *slog.Logger) *URLScan {
	return &URLScan{
		log:      log.With("name", "URLScan"),
		creds:    cfg.GetDataSourceConfig(config.SourceURLScan),
		disabled: cfg.SourceDisabled(config.SourceURLScan),
		rlimit:   ratelimit.New(2, ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (u *URLScan) String() string {
	return "URLScan"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (u *URLScan) IsConfigured() bool {
	return !u.disabled && u.creds.IsConfigured()
}

// Categories returns the verdict categories from the most recent public scan
// of the domain. An empty slice means no scan exists.
func (u *URLScan) Categories(ctx context.Context, domain string) ([]string, error) {
	u.rlimit.Take()

	params := url.Values{}
	params.Set("q", "page.domain:"+domain)
	params.Set("size", "1")
	su := fmt.Sprintf("%s/search/?%s", u.creds.BaseURL, params.Encode())

	headers := map[string]string{"API-Key": u.creds.Key}
	page, err := http.RequestWebPage(ctx, su, nil, headers, nil)
	if err != nil {
		return nil, err
	}

	var search struct {
		Results []struct {
			ID string `json:"_id"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(page), &search); err != nil {
		return nil, fmt.Errorf("failed to decode the urlscan search response for %s: %v", domain, err)
	}
	if len(search.Results) == 0 {
		return nil, nil
	}

	u.rlimit.Take()
	ru := fmt.Sprintf("%s/result/%s/", u.creds.BaseURL, search.Results[0].ID)
	page, err = http.RequestWebPage(ctx, ru, nil, headers, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Verdicts struct {
			Overall struct {
				Categories []string `json:"categories"`
			} `json:"overall"`
		} `json:"verdicts"`
		Page struct {
			Status string `json:"status"`
		} `json:"page"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the urlscan result for %s: %v", domain, err)
	}
	return result.Verdicts.Overall.Categories, nil
}
