// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package types

// ChangeType identifies the kind of state transition observed between two scans.
type ChangeType string

// The change event types emitted by the diff engine.
const (
	ChangeNewRegistration ChangeType = "new_registration"
	ChangeBecameActive    ChangeType = "became_active"
	ChangeBecameParked    ChangeType = "became_parked"
	ChangeIPChange        ChangeType = "ip_change"
	ChangeMXNew           ChangeType = "mx_new"
	ChangeMXChange        ChangeType = "mx_change"
	ChangeGeoIPChange     ChangeType = "geoip_change"
	ChangeWhoisChange     ChangeType = "whois_change"
)

// Event priorities used by downstream alert consumers.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ChangeEvent records one observed transition for a candidate between the
// previous snapshot and the current scan.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	Domain    string     `json:"domain"`
	Priority  string     `json:"priority"`
	Candidate *Candidate `json:"candidate"`

	// Set when the candidate is a defensive registration; alert consumers
	// filter on this field rather than re-deriving it.
	IsDefensive bool `json:"is_defensive"`

	// Before and after values relevant to the change type
	AddedIPs      []string `json:"added_ips,omitempty"`
	RemovedIPs    []string `json:"removed_ips,omitempty"`
	PrevMX        []string `json:"prev_mx,omitempty"`
	CurrMX        []string `json:"curr_mx,omitempty"`
	PrevGeoIP     string   `json:"prev_geoip,omitempty"`
	CurrGeoIP     string   `json:"curr_geoip,omitempty"`
	PrevRegistrar string   `json:"prev_registrar,omitempty"`
	CurrRegistrar string   `json:"curr_registrar,omitempty"`
	PrevNS        []string `json:"prev_ns,omitempty"`
	CurrNS        []string `json:"curr_ns,omitempty"`
}

// Actionable returns true when the event should increment actionable counters.
// Defensive registrations are reported but never alerted on.
func (e *ChangeEvent) Actionable() bool {
	return !e.IsDefensive
}

// ChangePriority returns the priority downstream consumers assign to the change type.
func ChangePriority(t ChangeType) string {
	switch t {
	case ChangeBecameActive, ChangeMXNew:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}
