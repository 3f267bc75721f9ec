// Copyright © by the DomainWatch Authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/config"
	"github.com/domainwatch/domainwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testNotifier(baseURL, token, room string) *Notifier {
	cfg := config.NewConfig()
	cfg.AddDataSourceConfig(&config.DataSourceConfig{
		Name:        config.SourceWebex,
		BaseURL:     baseURL,
		Key:         token,
		Destination: room,
	})
	return NewNotifier(cfg, testLogger())
}

func sampleReport() *types.RunReport {
	run := types.NewRunReport("run-1", time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC))

	dr := types.NewDomainReport("acme.com")
	dr.Lookalikes = &types.LookalikeResult{
		FeedResult:       types.OKResult(),
		Candidates:       []*types.Candidate{{Domain: "acrne.com"}},
		NewRegistrations: 1,
		BecameActive:     1,
		Changes: []*types.ChangeEvent{
			{Type: types.ChangeNewRegistration, Domain: "acrne.com"},
			{Type: types.ChangeBecameActive, Domain: "acme-login.com", Priority: types.PriorityHigh},
		},
	}
	dr.DarkWeb = &types.DarkWebResult{
		FeedResult: types.OKResult(),
		Findings:   []types.DarkWebFinding{{Source: "intelx", Bucket: "leaks.public"}},
	}
	dr.VirusTotal = &types.VTResult{
		FeedResult: types.OKResult(),
		Checked:    2,
		HighRisk:   []string{"acrne.com"},
	}
	run.Accumulate(dr)
	return run
}

func TestRenderContainsTotalsAndHighlights(t *testing.T) {
	out := Render(sampleReport())

	assert.Contains(t, out, "2026-08-24")
	assert.Contains(t, out, "**New lookalikes:** 1")
	assert.Contains(t, out, "**Became active:** 1")
	assert.Contains(t, out, "### acme.com")
	assert.Contains(t, out, "Dark web: 1 finding(s)")
	assert.Contains(t, out, "VirusTotal flagged: acrne.com")
	assert.Contains(t, out, "### Highlights")
	assert.Contains(t, out, "**acme-login.com** became active")
	assert.Contains(t, out, "Dark-web mention of **acme.com** in leaks.public")
}

func TestRenderOmitsHighlightsWhenQuiet(t *testing.T) {
	run := types.NewRunReport("run-1", time.Now())
	run.Accumulate(types.NewDomainReport("acme.com"))

	out := Render(run)
	assert.NotContains(t, out, "### Highlights")
}

func TestSummarizePostsMarkdown(t *testing.T) {
	var posted map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &posted))
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	n := testNotifier(ts.URL, "token-1", "room-1")
	require.True(t, n.IsConfigured())

	require.NoError(t, n.Summarize(context.Background(), sampleReport()))
	assert.Equal(t, "room-1", posted["roomId"])
	assert.Contains(t, posted["markdown"], "DomainWatch Daily Summary")
}

func TestSummarizeSkipsCancelledRuns(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no message should be posted for a cancelled run")
	}))
	defer ts.Close()

	n := testNotifier(ts.URL, "token-1", "room-1")

	run := sampleReport()
	run.Cancelled = true
	assert.NoError(t, n.Summarize(context.Background(), run))
}

func TestSummarizeSkipsWhenUnconfigured(t *testing.T) {
	n := testNotifier("http://example.invalid", "", "")
	assert.False(t, n.IsConfigured())
	assert.NoError(t, n.Summarize(context.Background(), sampleReport()))
}
