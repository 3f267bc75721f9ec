// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"time"

	"github.com/caffix/pipeline"
)

// Fuzzer names assigned to candidates based on how they were generated.
const (
	FuzzerOriginal      = "original"
	FuzzerHomoglyph     = "homoglyph"
	FuzzerInsertion     = "insertion"
	FuzzerOmission      = "omission"
	FuzzerTransposition = "transposition"
	FuzzerRepetition    = "repetition"
	FuzzerReplacement   = "replacement"
	FuzzerVowelSwap     = "vowel-swap"
	FuzzerHyphenation   = "hyphenation"
	FuzzerSubdomain     = "subdomain"
	FuzzerBitsquatting  = "bitsquatting"
	FuzzerTLDSwap       = "tld-swap"
	FuzzerRFBrand       = "rf-brand-impersonation"
	FuzzerCTBrand       = "ct-brand-impersonation"
)

// RiskLevel is the classification assigned to a candidate by the risk ladder.
type RiskLevel string

// The risk levels, ordered from least to most concerning.
const (
	RiskDefensive  RiskLevel = "defensive"
	RiskParked     RiskLevel = "parked"
	RiskSuspicious RiskLevel = "suspicious"
	RiskHighRisk   RiskLevel = "high_risk"
	RiskUnknown    RiskLevel = "unknown"
)

// Confidence levels attached to parking verdicts.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// VTReputation holds the analysis counts returned by VirusTotal for a domain.
type VTReputation struct {
	Malicious   int    `json:"malicious"`
	Suspicious  int    `json:"suspicious"`
	Harmless    int    `json:"harmless"`
	Undetected  int    `json:"undetected"`
	ThreatLevel string `json:"threat_level,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Candidate represents a single lookalike FQDN discovered for a monitored domain.
type Candidate struct {
	Domain string `json:"domain"`
	Fuzzer string `json:"fuzzer"`

	// Resolution data
	DNSA    []string `json:"dns_a,omitempty"`
	DNSAAAA []string `json:"dns_aaaa,omitempty"`
	DNSMX   []string `json:"dns_mx,omitempty"`
	DNSNS   []string `json:"dns_ns,omitempty"`
	GeoIP   string   `json:"geoip,omitempty"`

	// WHOIS data
	Registrar        string   `json:"registrar,omitempty"`
	RegistrationDate string   `json:"registration_date,omitempty"`
	WhoisNameServers []string `json:"whois_name_servers,omitempty"`

	// Parking classification; nil means the cascade could not decide
	Parked            *bool    `json:"parked"`
	ParkingProvider   string   `json:"parking_provider,omitempty"`
	ParkingConfidence string   `json:"parking_confidence,omitempty"`
	ParkingIndicators []string `json:"parking_indicators,omitempty"`
	ParkingFinalURL   string   `json:"parking_final_url,omitempty"`

	// Enrichment data
	VTReputation *VTReputation `json:"vt_reputation,omitempty"`
	RFRiskScore  int           `json:"rf_risk_score,omitempty"`
	RFRiskLevel  string        `json:"rf_risk_level,omitempty"`
	RFRules      []string      `json:"rf_rules,omitempty"`

	// Derived attributes
	RiskLevel   RiskLevel `json:"risk_level"`
	IsDefensive bool      `json:"is_defensive"`

	FirstSeen time.Time `json:"first_seen"`
}

// Registered returns true when the candidate resolved to at least one A, AAAA or MX record.
func (c *Candidate) Registered() bool {
	return len(c.DNSA) > 0 || len(c.DNSAAAA) > 0 || len(c.DNSMX) > 0
}

// ParkedBool returns the parking verdict and whether one was reached.
func (c *Candidate) ParkedBool() (parked, known bool) {
	if c.Parked == nil {
		return false, false
	}
	return *c.Parked, true
}

// SetParked assigns a definitive parking verdict to the candidate.
func (c *Candidate) SetParked(parked bool) {
	c.Parked = &parked
}

// Clone implements pipeline Data.
func (c *Candidate) Clone() pipeline.Data {
	n := new(Candidate)

	*n = *c
	n.DNSA = append([]string(nil), c.DNSA...)
	n.DNSAAAA = append([]string(nil), c.DNSAAAA...)
	n.DNSMX = append([]string(nil), c.DNSMX...)
	n.DNSNS = append([]string(nil), c.DNSNS...)
	n.WhoisNameServers = append([]string(nil), c.WhoisNameServers...)
	n.ParkingIndicators = append([]string(nil), c.ParkingIndicators...)
	n.RFRules = append([]string(nil), c.RFRules...)
	if c.Parked != nil {
		p := *c.Parked
		n.Parked = &p
	}
	if c.VTReputation != nil {
		v := *c.VTReputation
		n.VTReputation = &v
	}
	return n
}

// MarkAsProcessed implements pipeline Data.
func (c *Candidate) MarkAsProcessed() {}

// RFRiskLevelFromScore derives the Recorded Future risk level from the numeric score.
func RFRiskLevelFromScore(score int) string {
	switch {
	case score >= 90:
		return "Critical"
	case score >= 65:
		return "High"
	case score >= 25:
		return "Medium"
	default:
		return "Low"
	}
}

// Snapshot is the persisted record of the last scan for one monitored domain.
type Snapshot struct {
	Seed              string                `json:"seed"`
	LastScanTime      time.Time             `json:"last_scan_time"`
	RegisteredDomains map[string]*Candidate `json:"registered_domains"`
	RiskCounts        map[RiskLevel]int     `json:"risk_counts,omitempty"`
}

// NewSnapshot returns an empty Snapshot for the provided monitored domain.
func NewSnapshot(seed string) *Snapshot {
	return &Snapshot{
		Seed:              seed,
		RegisteredDomains: make(map[string]*Candidate),
		RiskCounts:        make(map[RiskLevel]int),
	}
}

// Empty returns true when the snapshot contains no prior scan data.
func (s *Snapshot) Empty() bool {
	return s == nil || (s.LastScanTime.IsZero() && len(s.RegisteredDomains) == 0)
}

// CountRisks recomputes the per-level candidate counts.
func (s *Snapshot) CountRisks() {
	s.RiskCounts = make(map[RiskLevel]int)
	for _, c := range s.RegisteredDomains {
		s.RiskCounts[c.RiskLevel]++
	}
}

// WhoisRecord is the cached WHOIS data kept per candidate between runs.
type WhoisRecord struct {
	Domain           string    `json:"domain"`
	Registrar        string    `json:"registrar,omitempty"`
	RegistrationDate string    `json:"registration_date,omitempty"`
	NameServers      []string  `json:"name_servers,omitempty"`
	LastChecked      time.Time `json:"last_checked"`
}
