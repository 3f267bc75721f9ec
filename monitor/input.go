// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"

	"github.com/caffix/pipeline"
	"github.com/domainwatch/domainwatch/types"
)

// candidateSource feeds the generated candidate batch into the pipeline.
type candidateSource struct {
	candidates []*types.Candidate
	idx        int
}

// newCandidateSource returns an input source over the provided batch.
func newCandidateSource(candidates []*types.Candidate) *candidateSource {
	return &candidateSource{candidates: candidates}
}

// Next implements the pipeline InputSource interface.
func (s *candidateSource) Next(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return s.idx < len(s.candidates)
}

// Data implements the pipeline InputSource interface.
func (s *candidateSource) Data() pipeline.Data {
	if s.idx >= len(s.candidates) {
		return nil
	}

	data := s.candidates[s.idx]
	s.idx++
	return data
}

// Error implements the pipeline InputSource interface.
func (s *candidateSource) Error() error {
	return nil
}
