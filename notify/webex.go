// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package notify renders the daily summary and delivers it as a single Webex
// message. No per-event notifications exist; immediacy is traded for low noise.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/types"
)

// Notifier posts run summaries to a Webex room.
type Notifier struct {
	log   *slog.Logger
	creds *config.DataSourceConfig
}

// NewNotifier returns a Notifier bound to the webex registry entry.
func NewNotifier(cfg *config.Config, log *slog.Logger) *Notifier {
	return &Notifier{
		log:   log.With("component", "notify"),
		creds: cfg.GetDataSourceConfig(config.SourceWebex),
	}
}

// IsConfigured returns true when both the token and the room are set.
func (n *Notifier) IsConfigured() bool {
	return n.creds.IsConfigured() && n.creds.Destination != ""
}

// Summarize sends the daily summary for the report. Cancelled runs and
// missing credentials skip the notification without error.
func (n *Notifier) Summarize(ctx context.Context, report *types.RunReport) error {
	if report.Cancelled {
		n.log.Info("run was cancelled, skipping the summary notification")
		return nil
	}
	if !n.IsConfigured() {
		n.log.Info("webex is not configured, skipping the summary notification")
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"roomId":   n.creds.Destination,
		"markdown": Render(report),
	})
	if err != nil {
		return err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + n.creds.Key,
		"Content-Type":  "application/json",
	}
	_, err = http.RequestWebPage(ctx, n.creds.BaseURL+"/messages", strings.NewReader(string(body)), headers, nil)
	return err
}

// Render produces the markdown body of the daily summary: run totals, then
// per-seed counts, then highlights for became_active and dark-web findings.
func Render(report *types.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## DomainWatch Daily Summary — %s\n\n", report.ScanTime.Format("2006-01-02"))
	fmt.Fprintf(&b, "**New lookalikes:** %d | **Became active:** %d | **MX changes:** %d | **Actionable:** %d\n\n",
		report.NewLookalikes, report.BecameActive, report.MXChanges, report.Actionable)

	seeds := make([]string, 0, len(report.PerDomain))
	for seed := range report.PerDomain {
		seeds = append(seeds, seed)
	}
	sort.Strings(seeds)

	for _, seed := range seeds {
		dr := report.PerDomain[seed]
		fmt.Fprintf(&b, "### %s\n", seed)

		if lr := dr.Lookalikes; lr != nil && lr.Success {
			fmt.Fprintf(&b, "- Lookalikes: %d registered, %d new, %d became active\n",
				len(lr.Candidates), lr.NewRegistrations, lr.BecameActive)
		}
		if dr.DarkWeb != nil && dr.DarkWeb.Success && len(dr.DarkWeb.Findings) > 0 {
			fmt.Fprintf(&b, "- Dark web: %d finding(s)\n", len(dr.DarkWeb.Findings))
		}
		if dr.HIBP != nil && dr.HIBP.Success && len(dr.HIBP.Accounts) > 0 {
			fmt.Fprintf(&b, "- Breached accounts: %d\n", len(dr.HIBP.Accounts))
		}
		if dr.VirusTotal != nil && len(dr.VirusTotal.HighRisk) > 0 {
			fmt.Fprintf(&b, "- VirusTotal flagged: %s\n", strings.Join(dr.VirusTotal.HighRisk, ", "))
		}
		b.WriteString("\n")
	}

	if highlights := renderHighlights(report, seeds); highlights != "" {
		b.WriteString(highlights)
	}
	return b.String()
}

func renderHighlights(report *types.RunReport, seeds []string) string {
	var lines []string

	for _, seed := range seeds {
		dr := report.PerDomain[seed]
		if dr.Lookalikes == nil {
			continue
		}
		for _, ev := range dr.Lookalikes.Changes {
			if ev.Type == types.ChangeBecameActive && ev.Actionable() {
				lines = append(lines, fmt.Sprintf("- **%s** became active (was parked)", ev.Domain))
			}
		}
		if dr.DarkWeb != nil {
			for _, f := range dr.DarkWeb.Findings {
				lines = append(lines, fmt.Sprintf("- Dark-web mention of **%s** in %s", seed, f.Bucket))
			}
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return "### Highlights\n" + strings.Join(lines, "\n") + "\n"
}
