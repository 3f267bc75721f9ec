// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// FeedResult is the uniform envelope produced by every feed stage. A stage
// that was skipped or failed carries Success=false and the reason in Error.
type FeedResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrNotConfigured is the error string recorded for feeds without credentials.
const ErrNotConfigured = "not configured"

// FailedResult returns a FeedResult describing a stage failure.
func FailedResult(reason string) FeedResult {
	return FeedResult{Success: false, Error: reason}
}

// NotConfiguredResult returns the FeedResult recorded for unconfigured feeds.
func NotConfiguredResult() FeedResult {
	return FailedResult(ErrNotConfigured)
}

// OKResult returns a successful FeedResult.
func OKResult() FeedResult {
	return FeedResult{Success: true}
}

// LookalikeResult carries the candidate set and change events for one seed.
type LookalikeResult struct {
	FeedResult
	Candidates       []*Candidate   `json:"candidates"`
	Changes          []*ChangeEvent `json:"changes"`
	NewRegistrations int            `json:"new_registrations"`
	BecameActive     int            `json:"became_active"`
	RiskCounts       map[RiskLevel]int `json:"risk_counts,omitempty"`
}

// DarkWebFinding is a single dark-web or paste-site mention of the seed.
type DarkWebFinding struct {
	Source string `json:"source"`
	Bucket string `json:"bucket,omitempty"`
	Title  string `json:"title,omitempty"`
	Date   string `json:"date,omitempty"`
	Ref    string `json:"ref,omitempty"`
}

// DarkWebResult groups the dark-web mentions discovered for one seed.
type DarkWebResult struct {
	FeedResult
	Findings []DarkWebFinding `json:"findings,omitempty"`
}

// IntelXRecord is one record returned by an Intelligence X search.
type IntelXRecord struct {
	SystemID string `json:"system_id"`
	Name     string `json:"name,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Media    int    `json:"media,omitempty"`
	Date     string `json:"date,omitempty"`
}

// IntelXResult carries the Intelligence X search and phonebook output.
type IntelXResult struct {
	FeedResult
	Records   []IntelXRecord `json:"records,omitempty"`
	Selectors []string       `json:"selectors,omitempty"`
}

// CTCertificate describes one certificate pulled from CT log search.
type CTCertificate struct {
	ID         int64    `json:"id"`
	LoggedAt   string   `json:"logged_at,omitempty"`
	NotBefore  string   `json:"not_before,omitempty"`
	NotAfter   string   `json:"not_after,omitempty"`
	CommonName string   `json:"common_name"`
	NameValues []string `json:"name_values,omitempty"`
	Issuer     string   `json:"issuer,omitempty"`
}

// CTResult carries certificate transparency findings for one seed.
type CTResult struct {
	FeedResult
	Certificates []CTCertificate `json:"certificates,omitempty"`
	// Domains discovered through brand impersonation search that were not
	// already present in the candidate set
	NewDomains []string `json:"new_domains,omitempty"`
}

// WhoisResult carries the WHOIS diff findings for one seed.
type WhoisResult struct {
	FeedResult
	Changes   []*ChangeEvent `json:"changes,omitempty"`
	Backfills int            `json:"backfills,omitempty"`
}

// VTResult summarizes the VirusTotal stage for one seed.
type VTResult struct {
	FeedResult
	Checked     int      `json:"checked"`
	HighRisk    []string `json:"high_risk,omitempty"`
	RateLimited bool     `json:"rate_limited,omitempty"`
}

// RFResult summarizes the Recorded Future stage for one seed.
type RFResult struct {
	FeedResult
	DomainsScored int      `json:"domains_scored"`
	IPsScored     int      `json:"ips_scored"`
	BrandDomains  []string `json:"brand_domains,omitempty"`
}

// HIBPAccount pairs a probed address with the breaches it appears in.
type HIBPAccount struct {
	Email    string   `json:"email"`
	Breaches []string `json:"breaches"`
}

// HIBPResult carries the breached-credential findings for one seed.
type HIBPResult struct {
	FeedResult
	Accounts []HIBPAccount `json:"accounts,omitempty"`
}

// ShodanHost describes exposed infrastructure found for a seed IP.
type ShodanHost struct {
	IP        string   `json:"ip"`
	Ports     []int    `json:"ports,omitempty"`
	Hostnames []string `json:"hostnames,omitempty"`
	Org       string   `json:"org,omitempty"`
	Vulns     []string `json:"vulns,omitempty"`
}

// ShodanResult carries the infrastructure exposure findings for one seed.
type ShodanResult struct {
	FeedResult
	Hosts []ShodanHost `json:"hosts,omitempty"`
}

// AbuseCHResult carries URLhaus, ThreatFox and Feodo findings for one seed.
type AbuseCHResult struct {
	FeedResult
	URLhausMatches   []string `json:"urlhaus_matches,omitempty"`
	ThreatFoxMatches []string `json:"threatfox_matches,omitempty"`
	FeodoMatches     []string `json:"feodo_matches,omitempty"`
}

// Malicious returns the deduplicated set of domains or IPs flagged by any abuse.ch feed.
func (r *AbuseCHResult) Malicious() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{r.URLhausMatches, r.ThreatFoxMatches, r.FeodoMatches} {
		for _, v := range list {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

// AbuseIPDBCheck is the verdict for one IP address.
type AbuseIPDBCheck struct {
	IP              string `json:"ip"`
	ConfidenceScore int    `json:"confidence_score"`
	TotalReports    int    `json:"total_reports"`
	CountryCode     string `json:"country_code,omitempty"`
	ISP             string `json:"isp,omitempty"`
}

// AbuseIPDBResult carries the IP reputation findings for one seed.
type AbuseIPDBResult struct {
	FeedResult
	Checks []AbuseIPDBCheck `json:"checks,omitempty"`
}

// MaliciousIPs returns the IPs with an abuse confidence score of 50 or higher.
func (r *AbuseIPDBResult) MaliciousIPs() []string {
	var out []string
	for _, c := range r.Checks {
		if c.ConfidenceScore >= 50 {
			out = append(out, c.IP)
		}
	}
	return out
}

// DomainReport aggregates every stage result for one monitored domain.
type DomainReport struct {
	Seed           string           `json:"seed"`
	Lookalikes     *LookalikeResult `json:"lookalikes"`
	DarkWeb        *DarkWebResult   `json:"dark_web"`
	IntelX         *IntelXResult    `json:"intelx"`
	CTLogs         *CTResult        `json:"ct_logs"`
	Whois          *WhoisResult     `json:"whois"`
	VirusTotal     *VTResult        `json:"virustotal"`
	RecordedFuture *RFResult        `json:"recorded_future"`
	HIBP           *HIBPResult      `json:"hibp"`
	Shodan         *ShodanResult    `json:"shodan"`
	AbuseCH        *AbuseCHResult   `json:"abusech"`
	AbuseIPDB      *AbuseIPDBResult `json:"abuseipdb"`
}

// NewDomainReport returns a DomainReport with every stage marked unconfigured,
// to be overwritten as stages execute.
func NewDomainReport(seed string) *DomainReport {
	return &DomainReport{
		Seed:           seed,
		Lookalikes:     &LookalikeResult{FeedResult: NotConfiguredResult()},
		DarkWeb:        &DarkWebResult{FeedResult: NotConfiguredResult()},
		IntelX:         &IntelXResult{FeedResult: NotConfiguredResult()},
		CTLogs:         &CTResult{FeedResult: NotConfiguredResult()},
		Whois:          &WhoisResult{FeedResult: NotConfiguredResult()},
		VirusTotal:     &VTResult{FeedResult: NotConfiguredResult()},
		RecordedFuture: &RFResult{FeedResult: NotConfiguredResult()},
		HIBP:           &HIBPResult{FeedResult: NotConfiguredResult()},
		Shodan:         &ShodanResult{FeedResult: NotConfiguredResult()},
		AbuseCH:        &AbuseCHResult{FeedResult: NotConfiguredResult()},
		AbuseIPDB:      &AbuseIPDBResult{FeedResult: NotConfiguredResult()},
	}
}

// Totals are the top-level counters of a RunReport. The JSON field names are
// a stable contract consumed by the dashboard.
type Totals struct {
	NewLookalikes      int `json:"total_new_lookalikes"`
	BecameActive       int `json:"total_became_active"`
	MXChanges          int `json:"total_mx_changes"`
	DarkWebFindings    int `json:"total_dark_web_findings"`
	IntelXFindings     int `json:"total_intelx_findings"`
	CTFindings         int `json:"total_ct_findings"`
	WhoisChanges       int `json:"total_whois_changes"`
	VTHighRisk         int `json:"total_vt_high_risk"`
	HIBPBreaches       int `json:"total_hibp_breaches"`
	ShodanExposures    int `json:"total_shodan_exposures"`
	AbuseCHMalicious   int `json:"total_abusech_malicious"`
	AbuseIPDBMalicious int `json:"total_abuseipdb_malicious"`
	Actionable         int `json:"total_actionable"`
}

// RunReport is the artifact produced by one orchestrator pass.
type RunReport struct {
	RunID     string    `json:"run_id"`
	ScanTime  time.Time `json:"scan_time"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Totals
	PerDomain map[string]*DomainReport `json:"per_domain"`
}

// NewRunReport returns an initialized RunReport for the provided run ID.
func NewRunReport(id string, scan time.Time) *RunReport {
	return &RunReport{
		RunID:     id,
		ScanTime:  scan,
		PerDomain: make(map[string]*DomainReport),
	}
}

// Accumulate folds one domain report into the run totals.
func (r *RunReport) Accumulate(dr *DomainReport) {
	r.PerDomain[dr.Seed] = dr

	if lr := dr.Lookalikes; lr != nil && lr.Success {
		for _, ev := range lr.Changes {
			switch ev.Type {
			case ChangeNewRegistration:
				r.NewLookalikes++
			case ChangeBecameActive:
				r.BecameActive++
			case ChangeMXNew, ChangeMXChange:
				r.MXChanges++
			}
			if ev.Actionable() {
				r.Actionable++
			}
		}
	}
	if dr.DarkWeb != nil && dr.DarkWeb.Success {
		r.DarkWebFindings += len(dr.DarkWeb.Findings)
	}
	if dr.IntelX != nil && dr.IntelX.Success {
		r.IntelXFindings += len(dr.IntelX.Records)
	}
	if dr.CTLogs != nil && dr.CTLogs.Success {
		r.CTFindings += len(dr.CTLogs.Certificates)
	}
	if dr.Whois != nil && dr.Whois.Success {
		r.WhoisChanges += len(dr.Whois.Changes)
	}
	if dr.VirusTotal != nil && dr.VirusTotal.Success {
		r.VTHighRisk += len(dr.VirusTotal.HighRisk)
	}
	if dr.HIBP != nil && dr.HIBP.Success {
		for _, acct := range dr.HIBP.Accounts {
			r.HIBPBreaches += len(acct.Breaches)
		}
	}
	if dr.Shodan != nil && dr.Shodan.Success {
		r.ShodanExposures += len(dr.Shodan.Hosts)
	}
	if dr.AbuseCH != nil && dr.AbuseCH.Success {
		r.AbuseCHMalicious += len(dr.AbuseCH.Malicious())
	}
	if dr.AbuseIPDB != nil && dr.AbuseIPDB.Success {
		r.AbuseIPDBMalicious += len(dr.AbuseIPDB.MaliciousIPs())
	}
}
