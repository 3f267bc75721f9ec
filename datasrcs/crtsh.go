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

	"github.com/caffix/stringset"
	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
	"go.uber.org/ratelimit"
)

// Certificates older than this are ignored during daily monitoring.
const crtshWindow = 7 * 24 * time.Hour

// Crtsh is the adapter for the crt.sh certificate transparency search. The
// service needs no credential but is easily overloaded, so lookups stay slow
// and failures degrade to empty results at the caller.
type Crtsh struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
	now      func() time.Time
}

// NewCrtsh returns the adapter.
func NewCrtsh(cfg *config.Config, log *slog.Logger) *Crtsh {
	return &Crtsh{
		log:      log.With("name", "Crtsh"),
		creds:    cfg.GetDataSourceConfig(config.SourceCrtsh),
		disabled: cfg.SourceDisabled(config.SourceCrtsh),
		rlimit:   ratelimit.New(1, ratelimit.WithoutSlack),
		now:      time.Now,
	}
}

// String implements the source naming convention.
func (c *Crtsh) String() string {
	return "Crtsh"
}

// IsConfigured returns true unless the feed was disabled through settings.
func (c *Crtsh) IsConfigured() bool {
	return !c.disabled && c.creds.IsConfigured()
}

type crtshEntry struct {
	ID         int64  `json:"id"`
	EntryTime  string `json:"entry_timestamp"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
	CommonName string `json:"common_name"`
	NameValue  string `json:"name_value"`
	IssuerName string `json:"issuer_name"`
}

func (c *Crtsh) search(ctx context.Context, query string) ([]crtshEntry, error) {
	c.rlimit.Take()

	u := fmt.Sprintf("%s/?q=%s&output=json", c.creds.BaseURL, url.QueryEscape(query))
	page, err := http.RequestWebPage(ctx, u, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var entries []crtshEntry
	if err := json.Unmarshal([]byte(page), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode the crt.sh response for %s: %v", query, err)
	}
	return entries, nil
}

// recent keeps only certificates logged inside the monitoring window.
func (c *Crtsh) recent(entries []crtshEntry) []types.CTCertificate {
	cutoff := c.now().Add(-crtshWindow)

	var certs []types.CTCertificate
	for _, e := range entries {
		logged, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(e.EntryTime, "Z"))
		if err != nil || logged.Before(cutoff) {
			continue
		}

		cert := types.CTCertificate{
			ID:         e.ID,
			LoggedAt:   e.EntryTime,
			NotBefore:  e.NotBefore,
			NotAfter:   e.NotAfter,
			CommonName: strings.ToLower(e.CommonName),
			Issuer:     e.IssuerName,
		}
		for _, name := range strings.Split(e.NameValue, "\n") {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				cert.NameValues = append(cert.NameValues, name)
			}
		}
		certs = append(certs, cert)
	}
	return certs
}

// SeedCertificates returns recently logged certificates covering the seed or
// its subdomains.
func (c *Crtsh) SeedCertificates(ctx context.Context, seed string) ([]types.CTCertificate, error) {
	entries, err := c.search(ctx, "%."+seed)
	if err != nil {
		return nil, err
	}
	return c.recent(entries), nil
}

// BrandCertificates searches for recent certificates whose names contain the
// brand label and returns the registrable domains not already in known.
func (c *Crtsh) BrandCertificates(ctx context.Context, label string, known *stringset.Set) ([]types.CTCertificate, []string, error) {
	entries, err := c.search(ctx, "%."+label+"%")
	if err != nil {
		return nil, nil, err
	}
	certs := c.recent(entries)

	discovered := stringset.New()
	defer discovered.Close()

	for _, cert := range certs {
		names := append([]string{cert.CommonName}, cert.NameValues...)
		for _, name := range names {
			name = dns.RemoveAsteriskLabel(name)
			base, suffix := dns.SplitDomain(name)
			if base == "" || !strings.Contains(base, label) {
				continue
			}
			reg := base + "." + suffix
			if !known.Has(reg) {
				discovered.Insert(reg)
			}
		}
	}
	return certs, discovered.Slice(), nil
}
