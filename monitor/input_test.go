// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"testing"

	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateSourceDrainsBatch(t *testing.T) {
	batch := []*types.Candidate{
		{Domain: "acrne.com"},
		{Domain: "amce.com"},
	}
	src := newCandidateSource(batch)

	ctx := context.Background()
	var drained []string
	for src.Next(ctx) {
		cand, ok := src.Data().(*types.Candidate)
		require.True(t, ok)
		drained = append(drained, cand.Domain)
	}

	assert.Equal(t, []string{"acrne.com", "amce.com"}, drained)
	assert.NoError(t, src.Error())
	assert.False(t, src.Next(ctx))
	assert.Nil(t, src.Data())
}

func TestCandidateSourceStopsOnCancel(t *testing.T) {
	src := newCandidateSource([]*types.Candidate{{Domain: "acrne.com"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, src.Next(ctx))
}
