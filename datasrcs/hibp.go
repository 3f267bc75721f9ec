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
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"go.uber.org/ratelimit"
)

// HIBP is the adapter for the Have I Been Pwned breached-account API. The
// free tier enforces one request per six seconds, so the limiter paces at
// 6.1s between calls to stay clear of the boundary.
type HIBP struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
}

// hibpPace keeps successive calls clear of the one request per six seconds
// rule of the free tier.
const hibpPace = 6100 * time.Millisecond

// NewHIBP returns the adapter.
func NewHIBP(cfg *config.Config, log *slog.Logger) *HIBP {
	return newHIBP(cfg, log, ratelimit.New(1, ratelimit.Per(hibpPace), ratelimit.WithoutSlack))
}

// newHIBP accepts the limiter so pacing can be driven by a fake clock.
func newHIBP(cfg *config.Config, log *slog.Logger, rl ratelimit.Limiter) *HIBP {
	return &HIBP{
		log:      log.With("name", "HIBP"),
		creds:    cfg.GetDataSourceConfig(config.SourceHIBP),
		disabled: cfg.SourceDisabled(config.SourceHIBP),
		rlimit:   rl,
	}
}

// String implements the source naming convention.
func (h *HIBP) String() string {
	return "HIBP"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (h *HIBP) IsConfigured() bool {
	return !h.disabled && h.creds.IsConfigured()
}

// BreachedAccount returns the breach names the address appears in. A clean
// address returns an empty slice without error.
func (h *HIBP) BreachedAccount(ctx context.Context, email string) ([]string, error) {
	h.rlimit.Take()

	u := fmt.Sprintf("%s/breachedaccount/%s?truncateResponse=true", h.creds.BaseURL, url.PathEscape(email))
	headers := map[string]string{
		"hibp-api-key": h.creds.Key,
		"Accept":       "application/json",
	}

	page, err := http.RequestWebPage(ctx, u, nil, headers, nil)
	if err != nil {
		// 404 means the address appears in no breach
		if strings.Contains(err.Error(), "404") {
			return nil, nil
		}
		return nil, err
	}

	var breaches []struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal([]byte(page), &breaches); err != nil {
		return nil, fmt.Errorf("failed to decode the HIBP response for %s: %v", email, err)
	}

	var names []string
	for _, b := range breaches {
		names = append(names, b.Name)
	}
	return names, nil
}
