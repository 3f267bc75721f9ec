// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccumulateCountsByEventType(t *testing.T) {
	run := NewRunReport("run-1", time.Now())

	dr := NewDomainReport("acme.com")
	dr.Lookalikes = &LookalikeResult{
		FeedResult: OKResult(),
		Changes: []*ChangeEvent{
			{Type: ChangeNewRegistration, Domain: "acrne.com"},
			{Type: ChangeBecameActive, Domain: "acme-login.com"},
			{Type: ChangeMXNew, Domain: "acme-login.com"},
			{Type: ChangeMXChange, Domain: "amce.com"},
			{Type: ChangeIPChange, Domain: "amce.com"},
		},
	}
	run.Accumulate(dr)

	assert.Equal(t, 1, run.NewLookalikes)
	assert.Equal(t, 1, run.BecameActive)
	assert.Equal(t, 2, run.MXChanges)
	assert.Equal(t, 5, run.Actionable)
}

func TestAccumulateSkipsDefensiveEvents(t *testing.T) {
	run := NewRunReport("run-1", time.Now())

	dr := NewDomainReport("acme.com")
	dr.Lookalikes = &LookalikeResult{
		FeedResult: OKResult(),
		Changes: []*ChangeEvent{
			{Type: ChangeNewRegistration, Domain: "acme-careers.com", IsDefensive: true},
			{Type: ChangeNewRegistration, Domain: "acrne.com"},
		},
	}
	run.Accumulate(dr)

	// Defensive registrations are counted but never actionable
	assert.Equal(t, 2, run.NewLookalikes)
	assert.Equal(t, 1, run.Actionable)
}

func TestAccumulateIgnoresFailedStages(t *testing.T) {
	run := NewRunReport("run-1", time.Now())

	dr := NewDomainReport("acme.com")
	dr.DarkWeb = &DarkWebResult{
		FeedResult: FailedResult("timeout"),
		Findings:   []DarkWebFinding{{Source: "intelx"}},
	}
	dr.VirusTotal = &VTResult{
		FeedResult: OKResult(),
		HighRisk:   []string{"acrne.com"},
	}
	run.Accumulate(dr)

	assert.Zero(t, run.DarkWebFindings)
	assert.Equal(t, 1, run.VTHighRisk)
}

func TestAccumulateSpansSeeds(t *testing.T) {
	run := NewRunReport("run-1", time.Now())

	for _, seed := range []string{"acme.com", "widget.io"} {
		dr := NewDomainReport(seed)
		dr.HIBP = &HIBPResult{
			FeedResult: OKResult(),
			Accounts: []HIBPAccount{
				{Email: "admin@" + seed, Breaches: []string{"Adobe", "LinkedIn"}},
			},
		}
		run.Accumulate(dr)
	}

	assert.Equal(t, 4, run.HIBPBreaches)
	assert.Len(t, run.PerDomain, 2)
}

func TestAbuseResultHelpers(t *testing.T) {
	ch := &AbuseCHResult{
		URLhausMatches:   []string{"acrne.com"},
		ThreatFoxMatches: []string{"acrne.com", "amce.com"},
	}
	assert.ElementsMatch(t, []string{"acrne.com", "amce.com"}, ch.Malicious())

	ipdb := &AbuseIPDBResult{Checks: []AbuseIPDBCheck{
		{IP: "1.1.1.1", ConfidenceScore: 10},
		{IP: "2.2.2.2", ConfidenceScore: 90},
	}}
	assert.Equal(t, []string{"2.2.2.2"}, ipdb.MaliciousIPs())
}

func TestChangePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ChangePriority(ChangeBecameActive))
	assert.Equal(t, PriorityHigh, ChangePriority(ChangeMXNew))
	assert.Equal(t, PriorityNormal, ChangePriority(ChangeNewRegistration))
	assert.Equal(t, PriorityNormal, ChangePriority(ChangeGeoIPChange))
}
