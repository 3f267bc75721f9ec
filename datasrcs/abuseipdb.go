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
	"sync"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

// AbuseIPDB is the adapter for the AbuseIPDB check endpoint. A run-level
// budget counter protects the free-tier daily quota.
type AbuseIPDB struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter

	sync.Mutex
	budget int
	used   int
}

// NewAbuseIPDB returns the adapter honoring the configured daily budget.
func NewAbuseIPDB(cfg *config.Config, log *slog.Logger) *AbuseIPDB {
	budget := cfg.AbuseIPDBBudget
	if budget <= 0 {
		budget = 1000
	}

	return &AbuseIPDB{
		log:      log.With("name", "AbuseIPDB"),
		creds:    cfg.GetDataSourceConfig(config.SourceAbuseIPDB),
		disabled: cfg.SourceDisabled(config.SourceAbuseIPDB),
		rlimit:   ratelimit.New(2, ratelimit.WithoutSlack),
		budget:   budget,
	}
}

// String implements the source naming convention.
func (a *AbuseIPDB) String() string {
	return "AbuseIPDB"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (a *AbuseIPDB) IsConfigured() bool {
	return !a.disabled && a.creds.IsConfigured()
}

// BudgetRemaining returns how many checks the run may still perform.
func (a *AbuseIPDB) BudgetRemaining() int {
	a.Lock()
	defer a.Unlock()
	return a.budget - a.used
}

// Check returns the abuse verdict for one IP address. Once the budget is
// exhausted every call fails with a RateLimitError until the next run.
func (a *AbuseIPDB) Check(ctx context.Context, ip string) (*types.AbuseIPDBCheck, error) {
	a.Lock()
	if a.used >= a.budget {
		a.Unlock()
		return nil, &http.RateLimitError{Status: "daily budget exhausted"}
	}
	a.used++
	a.Unlock()

	a.rlimit.Take()

	params := url.Values{}
	params.Set("ipAddress", ip)
	params.Set("maxAgeInDays", "90")
	u := fmt.Sprintf("%s/check?%s", a.creds.BaseURL, params.Encode())

	headers := map[string]string{
		"Key":    a.creds.Key,
		"Accept": "application/json",
	}
	page, err := http.RequestWebPage(ctx, u, nil, headers, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			IPAddress            string `json:"ipAddress"`
			AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
			TotalReports         int    `json:"totalReports"`
			CountryCode          string `json:"countryCode"`
			ISP                  string `json:"isp"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the AbuseIPDB response for %s: %v", ip, err)
	}

	return &types.AbuseIPDBCheck{
		IP:              result.Data.IPAddress,
		ConfidenceScore: result.Data.AbuseConfidenceScore,
		TotalReports:    result.Data.TotalReports,
		CountryCode:     result.Data.CountryCode,
		ISP:             result.Data.ISP,
	}, nil
}
