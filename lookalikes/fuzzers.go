// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package lookalikes

import (
	"strings"

	"github.com/caffix/stringset"
)

const (
	maxDNSLabelLen = 63
	dnsChars       = "abcdefghijklmnopqrstuvwxyz0123456789-"
)

// Characters that render close enough to fool a reader scanning an address
// bar. Multi-character sequences such as "rn" for "m" are included.
var homoglyphs = map[rune][]string{
	'a': {"4"},
	'b': {"8"},
	'd': {"cl"},
	'e': {"3"},
	'g': {"q", "9"},
	'i': {"1", "l"},
	'l': {"1", "i"},
	'm': {"rn", "nn"},
	'o': {"0"},
	'q': {"g"},
	's': {"5"},
	'u': {"v"},
	'v': {"u"},
	'w': {"vv"},
	'z': {"2"},
	'0': {"o"},
	'1': {"l", "i"},
	'5': {"s"},
}

// QWERTY neighbors used by the insertion and replacement fuzzers.
var keyboard = map[rune]string{
	'1': "2q", '2': "13w", '3': "24e", '4': "35r", '5': "46t",
	'6': "57y", '7': "68u", '8': "79i", '9': "80o", '0': "9p",
	'q': "12wa", 'w': "23qes", 'e': "34wrd", 'r': "45etf", 't': "56ryg",
	'y': "67tuh", 'u': "78yij", 'i': "89uok", 'o': "90ipl", 'p': "0o",
	'a': "qwsz", 's': "awedx", 'd': "serfc", 'f': "drtgv", 'g': "ftyhb",
	'h': "gyujn", 'j': "huikm", 'k': "jiol", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn",
	'n': "bhjm", 'm': "njk",
}

var vowels = "aeiou"

func validLabel(label string) bool {
	if l := len(label); l == 0 || l > maxDNSLabelLen {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, ch := range label {
		if !strings.ContainsRune(dnsChars, ch) {
			return false
		}
	}
	return true
}

// homoglyphLabels returns the label variants produced by confusable characters.
func homoglyphLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i, ch := range runes {
		for _, sub := range homoglyphs[ch] {
			variant := string(runes[:i]) + sub + string(runes[i+1:])
			if validLabel(variant) {
				results.Insert(variant)
			}
		}
	}
	return results.Slice()
}

// insertionLabels inserts characters adjacent on the keyboard to each position.
func insertionLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i, ch := range runes {
		for _, key := range keyboard[ch] {
			before := string(runes[:i]) + string(key) + string(runes[i:])
			after := string(runes[:i+1]) + string(key) + string(runes[i+1:])
			for _, variant := range []string{before, after} {
				if validLabel(variant) {
					results.Insert(variant)
				}
			}
		}
	}
	return results.Slice()
}

// omissionLabels drops one character at a time.
func omissionLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i := range runes {
		variant := string(runes[:i]) + string(runes[i+1:])
		if validLabel(variant) {
			results.Insert(variant)
		}
	}
	return results.Slice()
}

// transpositionLabels swaps each pair of neighboring characters.
func transpositionLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == runes[i+1] {
			continue
		}
		variant := string(runes[:i]) + string(runes[i+1]) + string(runes[i]) + string(runes[i+2:])
		if validLabel(variant) {
			results.Insert(variant)
		}
	}
	return results.Slice()
}

// repetitionLabels doubles each character in turn.
func repetitionLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i, ch := range runes {
		variant := string(runes[:i+1]) + string(ch) + string(runes[i+1:])
		if validLabel(variant) {
			results.Insert(variant)
		}
	}
	return results.Slice()
}

// replacementLabels substitutes each character with its keyboard neighbors.
func replacementLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i, ch := range runes {
		for _, key := range keyboard[ch] {
			variant := string(runes[:i]) + string(key) + string(runes[i+1:])
			if validLabel(variant) {
				results.Insert(variant)
			}
		}
	}
	return results.Slice()
}

// vowelSwapLabels exchanges each vowel for every other vowel.
func vowelSwapLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i, ch := range runes {
		if !strings.ContainsRune(vowels, ch) {
			continue
		}
		for _, v := range vowels {
			if v == ch {
				continue
			}
			variant := string(runes[:i]) + string(v) + string(runes[i+1:])
			if validLabel(variant) {
				results.Insert(variant)
			}
		}
	}
	return results.Slice()
}

// hyphenationLabels inserts a hyphen between each pair of characters.
func hyphenationLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i := 1; i < len(runes); i++ {
		variant := string(runes[:i]) + "-" + string(runes[i:])
		if validLabel(variant) {
			results.Insert(variant)
		}
	}
	return results.Slice()
}

// subdomainLabels splits the label with a dot, producing names where the
// brand appears to be a subdomain, e.g. ac.me for acme.
func subdomainLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	runes := []rune(label)
	for i := 1; i < len(runes); i++ {
		if runes[i] == '-' || runes[i-1] == '-' {
			continue
		}
		left := string(runes[:i])
		right := string(runes[i:])
		if validLabel(left) && validLabel(right) {
			results.Insert(left + "." + right)
		}
	}
	return results.Slice()
}

// bitsquattingLabels flips each bit of each character, keeping valid DNS characters.
func bitsquattingLabels(label string) []string {
	results := stringset.New()
	defer results.Close()

	for i := 0; i < len(label); i++ {
		for bit := uint(0); bit < 8; bit++ {
			flipped := label[i] ^ (1 << bit)

			if !strings.ContainsRune(dnsChars, rune(flipped)) {
				continue
			}
			variant := label[:i] + string(rune(flipped)) + label[i+1:]
			if validLabel(variant) && variant != label {
				results.Insert(variant)
			}
		}
	}
	return results.Slice()
}
