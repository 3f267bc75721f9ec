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
	"strings"
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

// RDAP performs registration data lookups through the rdap.org bootstrap
// service, which redirects to the registry responsible for each TLD.
type RDAP struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
	now      func() time.Time
}

// NewRDAP returns the adapter. RDAP requires no credential.
func NewRDAP(cfg *config.Config, log *slog.Logger) *RDAP {
	return &RDAP{
		log:      log.With("name", "RDAP"),
		creds:    cfg.GetDataSourceConfig(config.SourceRDAP),
		disabled: cfg.SourceDisabled(config.SourceRDAP),
		rlimit:   ratelimit.New(2, ratelimit.WithoutSlack),
		now:      time.Now,
	}
}

// String implements the source naming convention.
func (r *RDAP) String() string {
	return "RDAP"
}

// IsConfigured returns true unless the feed was disabled through settings.
func (r *RDAP) IsConfigured() bool {
	return !r.disabled && r.creds.IsConfigured()
}

// Lookup returns the registration record for the domain.
func (r *RDAP) Lookup(ctx context.Context, domain string) (*types.WhoisRecord, error) {
	r.rlimit.Take()

	u := fmt.Sprintf("%s/domain/%s", r.creds.BaseURL, domain)
	page, err := http.RequestWebPage(ctx, u, nil, map[string]string{"Accept": "application/rdap+json"}, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Events []struct {
			Action string `json:"eventAction"`
			Date   string `json:"eventDate"`
		} `json:"events"`
		Entities []struct {
			Roles      []string        `json:"roles"`
			VcardArray json.RawMessage `json:"vcardArray"`
		} `json:"entities"`
		Nameservers []struct {
			LDHName string `json:"ldhName"`
		} `json:"nameservers"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the RDAP response for %s: %v", domain, err)
	}

	rec := &types.WhoisRecord{
		Domain:      dns.Normalize(domain),
		LastChecked: r.now(),
	}
	for _, ev := range result.Events {
		if ev.Action == "registration" {
			rec.RegistrationDate = ev.Date
		}
	}
	for _, ent := range result.Entities {
		for _, role := range ent.Roles {
			if role == "registrar" {
				rec.Registrar = vcardFullName(ent.VcardArray)
			}
		}
	}
	for _, ns := range result.Nameservers {
		rec.NameServers = append(rec.NameServers, dns.Normalize(ns.LDHName))
	}
	sort.Strings(rec.NameServers)
	return rec, nil
}

// vcardFullName digs the fn property out of a jCard array.
func vcardFullName(raw json.RawMessage) string {
	var vcard []json.RawMessage
	if err := json.Unmarshal(raw, &vcard); err != nil || len(vcard) < 2 {
		return ""
	}

	var props [][]json.RawMessage
	if err := json.Unmarshal(vcard[1], &props); err != nil {
		return ""
	}

	for _, prop := range props {
		if len(prop) < 4 {
			continue
		}
		var name string
		if err := json.Unmarshal(prop[0], &name); err != nil || !strings.EqualFold(name, "fn") {
			continue
		}
		var value string
		if err := json.Unmarshal(prop[3], &value); err == nil {
			return value
		}
	}
	return ""
}
