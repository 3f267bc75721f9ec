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

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/net/http"
	"go.uber.org/ratelimit"
)

// RFScore is the Recorded Future risk verdict for one domain or IP.
type RFScore struct {
	Entity string
	Score  int
	Rules  []string
}

// RecordedFuture is the adapter for the Recorded Future Connect API.
type RecordedFuture struct {
	log      *slog.Logger
	creds    *config.DataSourceConfig
	disabled bool
	rlimit   ratelimit.Limiter
}

// NewRecordedFuture returns the adapter with a conservative request rate.
func NewRecordedFuture(cfg *config.Config, log *slog.Logger) *RecordedFuture {
	return &RecordedFuture{
		log:      log.With("name", "RecordedFuture"),
		creds:    cfg.GetDataSourceConfig(config.SourceRecordedFuture),
		disabled: cfg.SourceDisabled(config.SourceRecordedFuture),
		rlimit:   ratelimit.New(2, ratelimit.WithoutSlack),
	}
}

// String implements the source naming convention.
func (r *RecordedFuture) String() string {
	return "RecordedFuture"
}

// IsConfigured returns true when an API token was provided and the feed is enabled.
func (r *RecordedFuture) IsConfigured() bool {
	return !r.disabled && r.creds.IsConfigured()
}

func (r *RecordedFuture) headers() map[string]string {
	return map[string]string{
		"X-RFToken": r.creds.Key,
		"Accept":    "application/json",
	}
}

type rfRiskResponse struct {
	Data struct {
		Risk struct {
			Score           int `json:"score"`
			EvidenceDetails []struct {
				Rule string `json:"rule"`
			} `json:"evidenceDetails"`
		} `json:"risk"`
	} `json:"data"`
}

// DomainRisk returns the risk score and triggered rules for one domain.
func (r *RecordedFuture) DomainRisk(ctx context.Context, domain string) (*RFScore, error) {
	return r.risk(ctx, "domain", domain)
}

// IPRisk returns the risk score and triggered rules for one IP address.
func (r *RecordedFuture) IPRisk(ctx context.Context, addr string) (*RFScore, error) {
	return r.risk(ctx, "ip", addr)
}

func (r *RecordedFuture) risk(ctx context.Context, kind, entity string) (*RFScore, error) {
	r.rlimit.Take()

	u := fmt.Sprintf("%s/%s/%s?fields=risk", r.creds.BaseURL, kind, url.PathEscape(entity))
	page, err := http.RequestWebPage(ctx, u, nil, r.headers(), nil)
	if err != nil {
		return nil, err
	}

	var result rfRiskResponse
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the Recorded Future response for %s: %v", entity, err)
	}

	score := &RFScore{Entity: entity, Score: result.Data.Risk.Score}
	for _, ev := range result.Data.Risk.EvidenceDetails {
		score.Rules = append(score.Rules, ev.Rule)
	}
	return score, nil
}

// DomainRisks scores a batch of domains. Entities absent from the response
// were unknown to Recorded Future and carry no score.
func (r *RecordedFuture) DomainRisks(ctx context.Context, domains []string) (map[string]*RFScore, error) {
	scores := make(map[string]*RFScore)

	// The bulk endpoint tops out at 1000 entities per request
	for start := 0; start < len(domains); start += 1000 {
		end := start + 1000
		if end > len(domains) {
			end = len(domains)
		}

		batch, err := r.bulkDomainRisk(ctx, domains[start:end])
		if err != nil {
			return scores, err
		}
		for k, v := range batch {
			scores[k] = v
		}
	}
	return scores, nil
}

func (r *RecordedFuture) bulkDomainRisk(ctx context.Context, domains []string) (map[string]*RFScore, error) {
	r.rlimit.Take()

	body, err := json.Marshal(map[string]interface{}{
		"ids":    domains,
		"fields": []string{"risk"},
	})
	if err != nil {
		return nil, err
	}

	headers := r.headers()
	headers["Content-Type"] = "application/json"
	page, err := http.RequestWebPage(ctx, r.creds.BaseURL+"/domain", strings.NewReader(string(body)), headers, nil)
	if err != nil {
		return nil, err
	}

	var result map[string]rfRiskResponse
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the Recorded Future bulk response: %v", err)
	}

	scores := make(map[string]*RFScore)
	for entity, resp := range result {
		score := &RFScore{Entity: entity, Score: resp.Data.Risk.Score}
		for _, ev := range resp.Data.Risk.EvidenceDetails {
			score.Rules = append(score.Rules, ev.Rule)
		}
		scores[strings.ToLower(entity)] = score
	}
	return scores, nil
}

// BrandDomains searches the typosquat detection list for domains flagged as
// impersonating the provided brand label.
func (r *RecordedFuture) BrandDomains(ctx context.Context, label string) ([]string, error) {
	r.rlimit.Take()

	params := url.Values{}
	params.Set("riskRule", "recentTyposquatSimilarity")
	params.Set("limit", "100")
	u := fmt.Sprintf("%s/domain/search?%s", r.creds.BaseURL, params.Encode())

	page, err := http.RequestWebPage(ctx, u, nil, r.headers(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			Results []struct {
				Entity struct {
					Name string `json:"name"`
				} `json:"entity"`
			} `json:"results"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(page), &result); err != nil {
		return nil, fmt.Errorf("failed to decode the Recorded Future search response: %v", err)
	}

	label = strings.ToLower(label)
	var domains []string
	for _, res := range result.Data.Results {
		name := strings.ToLower(res.Entity.Name)
		if strings.Contains(name, label) {
			domains = append(domains, name)
		}
	}
	return domains, nil
}
