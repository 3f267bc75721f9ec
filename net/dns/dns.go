// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RemoveAsteriskLabel returns the provided DNS name with all asterisk labels removed.
func RemoveAsteriskLabel(s string) string {
	startIndex := strings.LastIndex(s, "*.") + 2
	return s[startIndex:]
}

// Normalize lowercases the name and strips the trailing dot and surrounding space.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// SplitDomain separates a registrable domain into its base label and public
// suffix. The suffix is determined using the public suffix list, so
// multi-label suffixes such as co.uk are handled correctly.
func SplitDomain(domain string) (label, suffix string) {
	d := Normalize(domain)

	suffix, _ = publicsuffix.PublicSuffix(d)
	if suffix == "" || suffix == d {
		if idx := strings.LastIndex(d, "."); idx > 0 {
			return d[:idx], d[idx+1:]
		}
		return d, ""
	}

	label = strings.TrimSuffix(d, "."+suffix)
	// Only the label closest to the suffix identifies the brand
	if idx := strings.LastIndex(label, "."); idx >= 0 {
		label = label[idx+1:]
	}
	return label, suffix
}

// BaseLabel returns the brand label of a registrable domain, e.g. "acme" for acme.co.uk.
func BaseLabel(domain string) string {
	label, _ := SplitDomain(domain)
	return label
}

// IsSubdomainOf returns true when name equals domain or falls under it.
func IsSubdomainOf(name, domain string) bool {
	n := Normalize(name)
	d := Normalize(domain)

	return n == d || strings.HasSuffix(n, "."+d)
}
