// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package parking

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	dwhttp "github.com/domainwatch/domainwatch/net/http"
	"github.com/domainwatch/domainwatch/resources"
	"github.com/domainwatch/domainwatch/types"
)

const (
	probeTimeout      = 5 * time.Second
	probeMaxRedirects = 5
)

// Query parameters that parking landers carry the parked domain in.
var parkingParams = []string{"domain", "d", "siteid", "site_id", "ref", "source"}

// Body signatures of parking platforms and sale landers.
var parkingPatterns = []struct {
	provider string
	re       *regexp.Regexp
}{
	{"sedo", regexp.MustCompile(`(?i)sedoparking\.com|sedo\.com/search|This domain (name)? ?(has been registered|is for sale)`)},
	{"bodis", regexp.MustCompile(`(?i)bodis\.com|portfolio\.bodis`)},
	{"above", regexp.MustCompile(`(?i)above\.com/(market|park)`)},
	{"hugedomains", regexp.MustCompile(`(?i)hugedomains\.com|is for sale.{0,40}HugeDomains`)},
	{"dan", regexp.MustCompile(`(?i)dan\.com/buy|buy-domain|The domain name.{0,80}is for sale`)},
	{"afternic", regexp.MustCompile(`(?i)afternic\.com|afternic ltd`)},
	{"atom", regexp.MustCompile(`(?i)atom\.com/name|squadhelp\.com`)},
	{"brandpa", regexp.MustCompile(`(?i)brandpa\.com/name`)},
	{"godaddy", regexp.MustCompile(`(?i)LANDER_SYSTEM|wsimg\.com/parking|parking-lander|img\.sedoparking`)},
	{"adsense", regexp.MustCompile(`(?i)google\.com/adsense/domains`)},
	{"parkingcrew", regexp.MustCompile(`(?i)parkingcrew\.net|partner\.parkingcrew`)},
	{"", regexp.MustCompile(`(?i)domain (name )?is for sale|buy this domain|this (web ?page|domain) is parked|domain parking|renew now to keep|inquire about this domain|make an offer`)},
	{"", regexp.MustCompile(`(?i)(coming soon|under construction).{0,120}(register|domain)`)},
}

var landerRedirectRE = regexp.MustCompile(`(?i)(?:window\.location(?:\.href)?|location\.replace\()\s*=?\s*['"](/lander[^'"]*)`)

// prober performs the HTTP content tier of the cascade.
type prober struct {
	client       httpDoer
	marketplaces []string
}

type httpDoer interface {
	do(ctx context.Context, u string) (*dwhttp.ProbeResponse, error)
}

type defaultDoer struct{}

func (defaultDoer) do(ctx context.Context, u string) (*dwhttp.ProbeResponse, error) {
	client := dwhttp.NewProbeClient(probeTimeout, probeMaxRedirects)
	return dwhttp.Probe(ctx, client, u)
}

func newProber() *prober {
	return &prober{
		client:       defaultDoer{},
		marketplaces: resources.ParkingMarketplaces(),
	}
}

// probe fetches the domain over https, falling back to http, and evaluates
// the final page against the parking signatures. An unreachable domain
// yields an unknown verdict.
func (p *prober) probe(ctx context.Context, domain string) *Verdict {
	var resp *dwhttp.ProbeResponse
	var err error
	for _, scheme := range []string{"https://", "http://"} {
		resp, err = p.client.do(ctx, scheme+domain)
		if err == nil {
			break
		}
	}
	if err != nil || resp == nil {
		return &Verdict{Known: false, Indicators: []string{"probe-failed"}}
	}

	if v := p.evaluate(domain, resp); v != nil {
		v.FinalURL = resp.FinalURL
		return v
	}

	// A JavaScript hop to a /lander path is itself a GoDaddy-style parking
	// signal; the lander is fetched once and evaluated against the same set
	if m := landerRedirectRE.FindStringSubmatch(resp.Body); m != nil {
		if lander, err := p.client.do(ctx, landerTarget(resp.FinalURL, m[1])); err == nil {
			if v := p.evaluate(domain, lander); v != nil {
				v.Indicators = append(v.Indicators, "lander-redirect")
				v.FinalURL = lander.FinalURL
				return v
			}
		}
		return &Verdict{
			Parked:     true,
			Known:      true,
			Provider:   "godaddy",
			Confidence: types.ConfidenceMedium,
			Indicators: []string{"lander-redirect"},
			FinalURL:   resp.FinalURL,
		}
	}

	// Reachable content matching nothing in the signature set is active
	return &Verdict{
		Parked:     false,
		Known:      true,
		Confidence: types.ConfidenceMedium,
		Indicators: []string{"content-probe"},
		FinalURL:   resp.FinalURL,
	}
}

// landerTarget resolves the captured redirect path against the URL the page
// was served from. The captured path is absolute, so any path or query on
// the base is replaced rather than appended to.
func landerTarget(finalURL, redirect string) string {
	base, err := url.Parse(finalURL)
	if err != nil {
		return redirect
	}
	ref, err := url.Parse(redirect)
	if err != nil {
		return redirect
	}
	return base.ResolveReference(ref).String()
}

func (p *prober) evaluate(domain string, resp *dwhttp.ProbeResponse) *Verdict {
	final, err := url.Parse(resp.FinalURL)
	if err != nil {
		final = &url.URL{}
	}

	// Redirect chains ending on a marketplace are sale landers
	host := strings.ToLower(final.Hostname())
	for _, market := range p.marketplaces {
		if host == market || strings.HasSuffix(host, "."+market) {
			return &Verdict{
				Parked:     true,
				Known:      true,
				Provider:   providerFromHost(market),
				Confidence: types.ConfidenceHigh,
				Indicators: []string{"host:" + host},
			}
		}
	}

	// Parking parameters that reference the probed domain
	label := strings.SplitN(domain, ".", 2)[0]
	for _, param := range parkingParams {
		if v := final.Query().Get(param); v != "" {
			val := strings.ToLower(v)
			if strings.Contains(val, domain) || strings.Contains(val, label) {
				return &Verdict{
					Parked:     true,
					Known:      true,
					Provider:   providerFromHost(host),
					Confidence: types.ConfidenceHigh,
					Indicators: []string{"query-param:" + param},
				}
			}
		}
	}

	for _, sig := range parkingPatterns {
		if sig.re.MatchString(resp.Body) {
			v := &Verdict{
				Parked:     true,
				Known:      true,
				Provider:   sig.provider,
				Confidence: types.ConfidenceHigh,
				Indicators: []string{"pattern:" + patternName(sig.provider)},
			}
			if v.Provider == "" {
				v.Provider = providerFromHost(host)
			}
			return v
		}
	}

	// Script sources frequently betray the platform even when the visible
	// copy does not
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body)); err == nil {
		var verdict *Verdict
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			for _, sig := range parkingPatterns {
				if sig.provider != "" && sig.re.MatchString(src) {
					verdict = &Verdict{
						Parked:     true,
						Known:      true,
						Provider:   sig.provider,
						Confidence: types.ConfidenceHigh,
						Indicators: []string{"script-src:" + sig.provider},
					}
					return false
				}
			}
			return true
		})
		if verdict != nil {
			return verdict
		}
	}
	return nil
}

func patternName(provider string) string {
	if provider == "" {
		return "sale-phrase"
	}
	return provider
}

// providerFromHost derives a parking provider name from a matched host or
// nameserver suffix.
func providerFromHost(host string) string {
	h := strings.ToLower(host)
	h = strings.TrimSuffix(h, ".com")
	h = strings.TrimSuffix(h, ".net")
	h = strings.TrimSuffix(h, ".link")

	switch {
	case strings.Contains(h, "sedo"):
		return "sedo"
	case strings.Contains(h, "bodis"):
		return "bodis"
	case strings.Contains(h, "dan"):
		return "dan"
	case strings.Contains(h, "afternic"):
		return "afternic"
	case strings.Contains(h, "hugedomains"):
		return "hugedomains"
	case strings.Contains(h, "sav"):
		return "sav"
	case strings.Contains(h, "namecheap"):
		return "namecheap"
	case strings.Contains(h, "cashparking") || strings.Contains(h, "wsimg"):
		return "godaddy"
	case strings.Contains(h, "parkingcrew"):
		return "parkingcrew"
	case strings.Contains(h, "squadhelp") || strings.Contains(h, "atom"):
		return "atom"
	case strings.Contains(h, "above"):
		return "above"
	case strings.Contains(h, "uniregistry"):
		return "uniregistry"
	case strings.Contains(h, "undeveloped"):
		return "dan"
	}
	if idx := strings.IndexByte(h, '.'); idx > 0 {
		return h[:idx]
	}
	return h
}
