// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package risk

import (
	"testing"

	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
)

const seed = "acme.com"

func TestLadderDefensiveBeatsHighRisk(t *testing.T) {
	r := NewClassifier()

	// An allowlisted domain with MX records stays defensive
	c := &types.Candidate{
		Domain: "acme-careers.com",
		DNSA:   []string{"1.2.3.4"},
		DNSMX:  []string{"mail.acme-careers.com"},
	}
	level := r.Classify(c, seed, []string{"acme-careers.com"})
	assert.Equal(t, types.RiskDefensive, level)
}

func TestLadderDefensiveByNameserver(t *testing.T) {
	r := NewClassifier()

	c := &types.Candidate{
		Domain: "acme-shop.com",
		DNSA:   []string{"1.2.3.4"},
		DNSNS:  []string{"ns1.acme.com"},
	}
	assert.Equal(t, types.RiskDefensive, r.Classify(c, seed, nil))

	c = &types.Candidate{
		Domain:           "acme-shop.net",
		DNSA:             []string{"1.2.3.4"},
		WhoisNameServers: []string{"dns.acmecorp.net"},
	}
	assert.Equal(t, types.RiskDefensive, r.Classify(c, seed, nil))
}

func TestLadderDefensiveByRegistrar(t *testing.T) {
	r := NewClassifier()

	c := &types.Candidate{
		Domain:    "acrne.com",
		DNSA:      []string{"1.2.3.4"},
		DNSMX:     []string{"mx.acrne.com"},
		Registrar: "MarkMonitor Inc.",
	}
	assert.Equal(t, types.RiskDefensive, r.Classify(c, seed, nil))
}

func TestLadderParkedBeatsHighRisk(t *testing.T) {
	r := NewClassifier()

	c := &types.Candidate{
		Domain: "acrne.com",
		DNSA:   []string{"1.2.3.4"},
		DNSMX:  []string{"mx.park.example"},
	}
	c.SetParked(true)
	assert.Equal(t, types.RiskParked, r.Classify(c, seed, nil))
}

func TestLadderHighRisk(t *testing.T) {
	r := NewClassifier()

	mx := &types.Candidate{
		Domain: "acrne.com",
		DNSA:   []string{"1.2.3.4"},
		DNSMX:  []string{"mx.acrne.com"},
	}
	assert.Equal(t, types.RiskHighRisk, r.Classify(mx, seed, nil))

	vt := &types.Candidate{
		Domain:       "acrne.net",
		DNSA:         []string{"1.2.3.4"},
		VTReputation: &types.VTReputation{Malicious: 2},
	}
	assert.Equal(t, types.RiskHighRisk, r.Classify(vt, seed, nil))

	rf := &types.Candidate{
		Domain:      "acrne.io",
		DNSA:        []string{"1.2.3.4"},
		RFRiskScore: 70,
	}
	assert.Equal(t, types.RiskHighRisk, r.Classify(rf, seed, nil))
}

func TestLadderSuspicious(t *testing.T) {
	r := NewClassifier()

	resolved := &types.Candidate{
		Domain: "acrne.com",
		DNSA:   []string{"1.2.3.4"},
	}
	assert.Equal(t, types.RiskSuspicious, r.Classify(resolved, seed, nil))

	notParked := &types.Candidate{Domain: "acrne.net"}
	notParked.SetParked(false)
	assert.Equal(t, types.RiskSuspicious, r.Classify(notParked, seed, nil))
}

func TestLadderUnknown(t *testing.T) {
	r := NewClassifier()

	c := &types.Candidate{Domain: "acrne.com"}
	assert.Equal(t, types.RiskUnknown, r.Classify(c, seed, nil))
}

func TestExactlyOneLevelAssigned(t *testing.T) {
	r := NewClassifier()

	levels := map[types.RiskLevel]bool{
		types.RiskDefensive:  true,
		types.RiskParked:     true,
		types.RiskSuspicious: true,
		types.RiskHighRisk:   true,
		types.RiskUnknown:    true,
	}

	cands := []*types.Candidate{
		{Domain: "acrne.com"},
		{Domain: "acrne.net", DNSA: []string{"5.6.7.8"}},
		{Domain: "acrne.org", DNSMX: []string{"mx"}, DNSA: []string{"5.6.7.8"}},
	}
	for _, c := range cands {
		r.Assign(c, seed, nil)
		assert.True(t, levels[c.RiskLevel], c.Domain)
	}
}

func TestAssignSetsDefensiveFlag(t *testing.T) {
	r := NewClassifier()

	c := &types.Candidate{Domain: "acme-careers.com", DNSA: []string{"1.1.1.1"}}
	r.Assign(c, seed, []string{"acme-careers.com"})
	assert.True(t, c.IsDefensive)
	assert.Equal(t, types.RiskDefensive, c.RiskLevel)
}
