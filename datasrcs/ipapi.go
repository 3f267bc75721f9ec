// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package datasrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"go.uber.org/ratelimit"
)

// IPAPI resolves IP addresses to country codes through ipapi.co. Results are
// cached for the run since candidate sets frequently share hosting.
type IPAPI struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter

	sync.Mutex
	cache map[string]string
}

// NewIPAPI returns the adapter. ipapi.co requires no credential.
func NewIPAPI(cfg *config.Config, log *slog.Logger) *IPAPI {
	return &IPAPI{
		log:      log.With("name", "IPAPI"),
		creds:    cfg.GetDataSourceConfig(config.SourceIPAPI),
		disabled: cfg.SourceDisabled(config.SourceIPAPI),
		rlimit:   ratelimit.New(2, ratelimit.WithoutSlack),
		cache:    make(map[string]string),
	}
}

// String implements the source naming convention.
func (i *IPAPI) String() string {
	return "IPAPI"
}

// IsConfigured returns true unless the feed was disabled through settings.
func (i *IPAPI) IsConfigured() bool {
	return !i.disabled && i.creds.IsConfigured()
}

// Country returns the ISO country code hosting the address.
func (i *IPAPI) Country(ctx context.Context, ip string) (string, error) {
	i.Lock()
	if country, found := i.cache[ip]; found {
		i.Unlock()
		return country, nil
	}
	i.Unlock()

	i.rlimit.Take()

	u := fmt.Sprintf("%s/%s/json/", i.creds.BaseURL, ip)
	page, err := http.RequestWebPage(ctx, u, nil, nil, nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Country string `json:"country_code"`
		Error   bool   `json:"error"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return "", fmt.Errorf("failed to decode the ipapi response for %s: %v", ip, err)
	}
	if result.Error {
		return "", fmt.Errorf("ipapi rejected the lookup for %s: %s", ip, result.Reason)
	}

	i.Lock()
	i.cache[ip] = result.Country
	i.Unlock()
	return result.Country, nil
}
