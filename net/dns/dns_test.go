// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "acme.com", Normalize(" ACME.COM. "))
	assert.Equal(t, "acme.com", Normalize("acme.com"))
	assert.Equal(t, "", Normalize("  "))
}

func TestSplitDomain(t *testing.T) {
	cases := []struct {
		domain string
		label  string
		suffix string
	}{
		{"acme.com", "acme", "com"},
		{"acme.co.uk", "acme", "co.uk"},
		{"www.acme.com", "acme", "com"},
		{"ACME.IO.", "acme", "io"},
	}

	for _, tt := range cases {
		label, suffix := SplitDomain(tt.domain)
		assert.Equal(t, tt.label, label, tt.domain)
		assert.Equal(t, tt.suffix, suffix, tt.domain)
	}
}

func TestBaseLabel(t *testing.T) {
	assert.Equal(t, "acme", BaseLabel("acme.co.uk"))
	assert.Equal(t, "acme", BaseLabel("acme.com"))
}

func TestIsSubdomainOf(t *testing.T) {
	assert.True(t, IsSubdomainOf("ns1.sedoparking.com", "sedoparking.com"))
	assert.True(t, IsSubdomainOf("sedoparking.com", "sedoparking.com"))
	assert.False(t, IsSubdomainOf("notsedoparking.com", "sedoparking.com"))
	assert.False(t, IsSubdomainOf("sedoparking.com.evil.net", "sedoparking.com"))
}

func TestRemoveAsteriskLabel(t *testing.T) {
	assert.Equal(t, "acme.com", RemoveAsteriskLabel("*.acme.com"))
	assert.Equal(t, "acme.com", RemoveAsteriskLabel("acme.com"))
}
