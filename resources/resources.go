// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package resources

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed parking_nameservers.txt parking_ipranges.txt parking_marketplaces.txt malicious_tlds.txt common_tlds.txt brand_registrars.txt email_prefixes.txt
var resourceFS embed.FS

// GetResourceFile returns the embedded file at the provided path.
func GetResourceFile(path string) (fs.File, error) {
	file, err := resourceFS.Open(path)

	if err != nil {
		return nil, fmt.Errorf("failed to obtain the embedded file: %s: %v", path, err)
	}

	return file, err
}

// GetResourceFileData returns the raw content of the embedded file at the provided path.
func GetResourceFileData(path string) ([]byte, error) {
	return resourceFS.ReadFile(path)
}

// getList reads an embedded list file, skipping blanks and '#' comments.
func getList(path string) []string {
	file, err := resourceFS.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var list []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, strings.ToLower(line))
	}
	return list
}

// ParkingNameservers returns the nameserver domains operated by parking services.
func ParkingNameservers() []string {
	return getList("parking_nameservers.txt")
}

// ParkingIPRanges returns the CIDR ranges that parking landers resolve into.
func ParkingIPRanges() []string {
	return getList("parking_ipranges.txt")
}

// ParkingMarketplaces returns the hosts that domain-sale redirects terminate at.
func ParkingMarketplaces() []string {
	return getList("parking_marketplaces.txt")
}

// MaliciousTLDs returns the abuse-heavy TLDs used for candidate expansion.
func MaliciousTLDs() []string {
	return getList("malicious_tlds.txt")
}

// CommonTLDs returns the gTLDs used by the tld-swap fuzzer.
func CommonTLDs() []string {
	return getList("common_tlds.txt")
}

// BrandRegistrars returns registrar substrings indicating brand-protection services.
func BrandRegistrars() []string {
	return getList("brand_registrars.txt")
}

// EmailPrefixes returns the local parts probed against breach databases.
func EmailPrefixes() []string {
	return getList("email_prefixes.txt")
}
