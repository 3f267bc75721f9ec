// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package datasrcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

const (
	// An Intelligence X search is abandoned after this long.
	intelxPollDeadline = 60 * time.Second
	intelxPollInterval = 2 * time.Second
)

// IntelX is the adapter for the Intelligence X search API, covering leak and
// paste buckets plus the phonebook selector search.
type IntelX struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
}

// NewIntelX returns the adapter.
func NewIntelX(cfg *config.Config, log *slog.Logger) *IntelX {
	return &IntelX{
		log:      log.With("name", "IntelX"),
		creds:    cfg.GetDataSourceConfig(config.SourceIntelX),
		disabled: cfg.SourceDisabled(config.SourceIntelX),
		rlimit:   ratelimit.New(1, ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (x *IntelX) String() string {
	return "IntelX"
}

// IsConfigured returns true when an API key was provided and the feed is enabled.
func (x *IntelX) IsConfigured() bool {
	return !x.disabled && x.creds.IsConfigured()
}

func (x *IntelX) headers() map[string]string {
	return map[string]string{
		"x-key":        x.creds.Key,
		"Content-Type": "application/json",
	}
}

// Search runs an intelligent search for the term, polls until the search
// settles or the deadline passes, then terminates the search server-side.
func (x *IntelX) Search(ctx context.Context, term string) ([]types.IntelXRecord, error) {
	x.rlimit.Take()

	body, err := json.Marshal(map[string]interface{}{
		"term":       term,
		"maxresults": 100,
		"media":      0,
		"sort":       4,
		"terminate":  []string{},
	})
	if err != nil {
		return nil, err
	}

	page, err := http.RequestWebPage(ctx, x.creds.BaseURL+"/intelligent/search", strings.NewReader(string(body)), x.headers(), nil)
	if err != nil {
		return nil, err
	}

	var handle struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal([]byte(page), &handle); err != nil {
		return nil, fmt.Errorf("failed to decode the IntelX search handle for %s: %v", term, err)
	}
	if handle.Status != 0 || handle.ID == "" {
		return nil, fmt.Errorf("IntelX rejected the search for %s with status %d", term, handle.Status)
	}
	defer x.terminate(handle.ID)

	return x.poll(ctx, handle.ID)
}

func (x *IntelX) poll(ctx context.Context, id string) ([]types.IntelXRecord, error) {
	deadline := time.Now().Add(intelxPollDeadline)
	t := time.NewTicker(intelxPollInterval)
	defer t.Stop()

	var records []types.IntelXRecord
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		case <-t.C:
		}

		x.rlimit.Take()
		u := fmt.Sprintf("%s/intelligent/search/result?id=%s&limit=100", x.creds.BaseURL, id)
		page, err := http.RequestWebPage(ctx, u, nil, x.headers(), nil)
		if err != nil {
			return records, err
		}

		var result struct {
			Status  int `json:"status"`
			Records []struct {
				SystemID string `json:"systemid"`
				Name     string `json:"name"`
				Bucket   string `json:"bucket"`
				Media    int    `json:"media"`
				Date     string `json:"date"`
			} `json:"records"`
		}
		if err := json.Unmarshal([]byte(page), &result); err != nil {
			return records, fmt.Errorf("failed to decode the IntelX result page: %v", err)
		}

		for _, rec := range result.Records {
			records = append(records, types.IntelXRecord{
				SystemID: rec.SystemID,
				Name:     rec.Name,
				Bucket:   rec.Bucket,
				Media:    rec.Media,
				Date:     rec.Date,
			})
		}
		// 0 means more results pending, 1 means more available now,
		// anything else means the search has settled
		if result.Status != 0 && result.Status != 1 {
			break
		}
	}
	return records, nil
}

// terminate releases the server-side search. Best effort with a short
// independent deadline since the run context may already be closing.
func (x *IntelX) terminate(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := fmt.Sprintf("%s/intelligent/search/terminate?id=%s", x.creds.BaseURL, id)
	if _, err := http.RequestWebPage(ctx, u, nil, x.headers(), nil); err != nil {
		x.log.Debug("failed to terminate the search", "id", id, "err", err)
	}
}

// Phonebook returns selectors such as email addresses and subdomains that
// Intelligence X associates with the term.
func (x *IntelX) Phonebook(ctx context.Context, term string) ([]string, error) {
	x.rlimit.Take()

	body, err := json.Marshal(map[string]interface{}{
		"term":       term,
		"maxresults": 100,
		"media":      0,
		"target":     0,
		"terminate":  []string{},
	})
	if err != nil {
		return nil, err
	}

	page, err := http.RequestWebPage(ctx, x.creds.BaseURL+"/phonebook/search", strings.NewReader(string(body)), x.headers(), nil)
	if err != nil {
		return nil, err
	}

	var handle struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal([]byte(page), &handle); err != nil {
		return nil, fmt.Errorf("failed to decode the IntelX phonebook handle for %s: %v", term, err)
	}
	if handle.Status != 0 || handle.ID == "" {
		return nil, fmt.Errorf("IntelX rejected the phonebook search for %s with status %d", term, handle.Status)
	}
	defer x.terminate(handle.ID)

	x.rlimit.Take()
	u := fmt.Sprintf("%s/phonebook/search/result?id=%s&limit=100", x.creds.BaseURL, handle.ID)
	page, err = http.RequestWebPage(ctx, u, nil, x.headers(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Selectors []struct {
			SelectorValue string `json:"selectorvalue"`
		} `json:"selectors"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the IntelX phonebook result: %v", err)
	}

	var selectors []string
	for _, s := range result.Selectors {
		selectors = append(selectors, s.SelectorValue)
	}
	return selectors, nil
}
