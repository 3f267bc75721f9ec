// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package dns

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/semaphore"
)

const defaultQueryTimeout = 10 * time.Second

// DefaultResolverAddr is used when the configuration does not name a resolver.
const DefaultResolverAddr = "8.8.8.8:53"

// Resolution holds every record set gathered for one FQDN.
type Resolution struct {
	A    []string
	AAAA []string
	MX   []string
	NS   []string
}

// Registered returns true when the name resolved to at least one A, AAAA or MX record.
func (r *Resolution) Registered() bool {
	return len(r.A) > 0 || len(r.AAAA) > 0 || len(r.MX) > 0
}

// Resolver performs bounded DNS lookups against a single upstream server.
type Resolver struct {
	addr   string
	client *dns.Client
	sem    *semaphore.Weighted
}

// NewResolver returns a Resolver querying the provided server address with at
// most maxQueries lookups in flight.
func NewResolver(addr string, maxQueries int64) *Resolver {
	if addr == "" {
		addr = DefaultResolverAddr
	}
	if maxQueries <= 0 {
		maxQueries = 50
	}

	return &Resolver{
		addr: addr,
		client: &dns.Client{
			Net:     "udp",
			Timeout: defaultQueryTimeout,
		},
		sem: semaphore.NewWeighted(maxQueries),
	}
}

// Resolve gathers the A, AAAA, MX and NS record sets for the provided name.
// Record types that fail to resolve are left empty; an error is returned only
// when every query failed.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Resolution, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	res := new(Resolution)
	var failed int
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeMX, dns.TypeNS} {
		rrs, err := r.query(ctx, name, qtype)
		if err != nil {
			failed++
			continue
		}

		for _, rr := range rrs {
			switch record := rr.(type) {
			case *dns.A:
				res.A = append(res.A, record.A.String())
			case *dns.AAAA:
				res.AAAA = append(res.AAAA, record.AAAA.String())
			case *dns.MX:
				res.MX = append(res.MX, Normalize(record.Mx))
			case *dns.NS:
				res.NS = append(res.NS, Normalize(record.Ns))
			}
		}
	}

	sort.Strings(res.A)
	sort.Strings(res.AAAA)
	sort.Strings(res.MX)
	sort.Strings(res.NS)

	if failed == 4 {
		return res, errors.New("all DNS queries failed for " + name)
	}
	return res, nil
}

// Registered reports whether the name currently resolves to A, AAAA or MX records.
func (r *Resolver) Registered(ctx context.Context, name string) bool {
	res, err := r.Resolve(ctx, name)

	return err == nil && res.Registered()
}

func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.addr)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		// Retry over TCP for responses that exceeded the UDP payload size
		tcp := &dns.Client{Net: "tcp", Timeout: defaultQueryTimeout}
		if resp2, _, err2 := tcp.ExchangeContext(ctx, msg, r.addr); err2 == nil {
			resp = resp2
		}
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, errors.New(dns.RcodeToString[resp.Rcode] + " for " + name)
	}
	return resp.Answer, nil
}
