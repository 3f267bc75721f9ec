// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package risk maps an enriched candidate to a single risk level. The ladder
// is evaluated strictly in order, so a defensive registration with MX records
// stays defensive rather than becoming high risk.
package risk

import (
	"strings"

	"github.com/domainwatch/domainwatch/net/dns"
	"github.com/domainwatch/domainwatch/resources"
	"github.com/domainwatch/domainwatch/types"
)

// Classifier assigns risk levels using the embedded brand-protection
// registrar list. It holds no per-candidate state and is safe to share.
type Classifier struct {
	registrars []string
}

// NewClassifier returns a ready Classifier.
func NewClassifier() *Classifier {
	return &Classifier{registrars: resources.BrandRegistrars()}
}

// Classify returns the risk level for the candidate relative to its seed.
// The allowlist contains the seed's defensive registrations and the brand's
// known legitimate domains, already normalized.
func (r *Classifier) Classify(c *types.Candidate, seed string, allowlist []string) types.RiskLevel {
	if r.isDefensive(c, seed, allowlist) {
		return types.RiskDefensive
	}

	if parked, known := c.ParkedBool(); known && parked {
		return types.RiskParked
	}

	if len(c.DNSMX) > 0 {
		return types.RiskHighRisk
	}
	if c.VTReputation != nil && c.VTReputation.Malicious >= 1 {
		return types.RiskHighRisk
	}
	if c.RFRiskScore >= 65 {
		return types.RiskHighRisk
	}

	if parked, known := c.ParkedBool(); len(c.DNSA) > 0 || (known && !parked) {
		return types.RiskSuspicious
	}

	return types.RiskUnknown
}

// Assign classifies the candidate and writes RiskLevel and IsDefensive onto it.
func (r *Classifier) Assign(c *types.Candidate, seed string, allowlist []string) {
	c.RiskLevel = r.Classify(c, seed, allowlist)
	c.IsDefensive = c.RiskLevel == types.RiskDefensive
}

func (r *Classifier) isDefensive(c *types.Candidate, seed string, allowlist []string) bool {
	domain := dns.Normalize(c.Domain)
	for _, entry := range allowlist {
		if domain == dns.Normalize(entry) {
			return true
		}
	}

	// Nameservers operated by the organization itself betray a defensive
	// registration even when the allowlist has not caught up
	seedFQDN := dns.Normalize(seed)
	base := dns.BaseLabel(seed)
	nameservers := append(append([]string(nil), c.DNSNS...), c.WhoisNameServers...)
	for _, ns := range nameservers {
		n := dns.Normalize(ns)
		if base != "" && strings.Contains(n, base) {
			return true
		}
		if n == seedFQDN || strings.Contains(n, seedFQDN) {
			return true
		}
	}

	if c.Registrar != "" {
		reg := strings.ToLower(c.Registrar)
		for _, mark := range r.registrars {
			if strings.Contains(reg, mark) {
				return true
			}
		}
	}
	return false
}
