// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGovernance implements Governance for testing
type mockGovernance struct {
	height    int64
	params    *chainparams.Params
	counts    budget.Counts
	proposals []*budget.Proposal
	funded    []*budget.Proposal
	budgets   []*budget.FinalizedBudget
}

func (m *mockGovernance) Height() int64               { return m.height }
func (m *mockGovernance) Params() *chainparams.Params { return m.params }
func (m *mockGovernance) Counts() budget.Counts       { return m.counts }

func (m *mockGovernance) GetAllProposals() []*budget.Proposal {
	return m.proposals
}

func (m *mockGovernance) GetBudget() []*budget.Proposal { return m.funded }

func (m *mockGovernance) FindProposalByName(name string) (*budget.Proposal, bool) {
	for _, p := range m.proposals {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (m *mockGovernance) GetProposal(h budget.Hash) (*budget.Proposal, bool) {
	for _, p := range m.proposals {
		if p.Hash() == h {
			return p, true
		}
	}
	return nil, false
}

func (m *mockGovernance) GetFinalizedBudgets() []*budget.FinalizedBudget {
	return m.budgets
}

func (m *mockGovernance) GetFinalizedBudget(h budget.Hash) (*budget.FinalizedBudget, bool) {
	for _, f := range m.budgets {
		if f.Hash() == h {
			return f, true
		}
	}
	return nil, false
}

func (m *mockGovernance) GetFinalizedBudgetStatus(budget.Hash) string {
	return "OK"
}

func (m *mockGovernance) GetBudgetWithHighestVoteCount(height int64) (*budget.FinalizedBudget, bool) {
	for _, f := range m.budgets {
		if height >= f.BlockStart && height <= f.BlockEnd() {
			return f, true
		}
	}
	return nil, false
}

func (m *mockGovernance) GetRequiredPaymentsString(height int64) string {
	if f, ok := m.GetBudgetWithHighestVoteCount(height); ok {
		if p, ok := f.PaymentAt(height); ok {
			return p.ProposalHash.String()
		}
	}
	return "unknown-budget"
}

func (m *mockGovernance) IsBudgetPaymentBlock(height int64) bool {
	_, ok := m.GetBudgetWithHighestVoteCount(height)
	return ok
}

var testNow = time.Unix(1_700_000_000, 0)

func testProposal(t *testing.T, params *chainparams.Params, name string, amount int64) *budget.Proposal {
	t.Helper()
	payee := budget.Script{0x76, 0xa9, 0x14}
	b := budget.NewProposalBroadcast(
		params,
		name,
		"https://example.com/"+name,
		2,
		payee,
		amount,
		1008,
		budget.Hash{0x01},
	)
	b.Time = testNow.Add(-24 * time.Hour).Unix()
	return b.ToProposal()
}

func newTestGovernance(t *testing.T) *mockGovernance {
	t.Helper()
	params, err := chainparams.ByName(chainparams.NetworkRegtest)
	require.NoError(t, err)
	alpha := testProposal(t, params, "alpha", 100*chainparams.Coin)
	beta := testProposal(t, params, "beta", 50*chainparams.Coin)
	fb := budget.NewFinalizedBudgetBroadcast(
		"main",
		1008,
		[]budget.Payment{
			{ProposalHash: alpha.Hash(), Payee: alpha.Payee, Amount: alpha.Amount},
			{ProposalHash: beta.Hash(), Payee: beta.Payee, Amount: beta.Amount},
		},
		budget.Hash{0x02},
	).ToFinalizedBudget()
	return &mockGovernance{
		height:    1000,
		params:    params,
		counts:    budget.Counts{Proposals: 2, FinalizedBudgets: 1, ProposalVotes: 7},
		proposals: []*budget.Proposal{alpha, beta},
		funded:    []*budget.Proposal{alpha},
		budgets:   []*budget.FinalizedBudget{fb},
	}
}

func newTestServer(gov Governance) *Server {
	return New(
		Config{
			ListenAddress: "127.0.0.1:0",
			Clock:         func() time.Time { return testNow },
		},
		gov,
		nil,
	)
}

func doGet(t *testing.T, s *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStartStop(t *testing.T) {
	s := newTestServer(newTestGovernance(t))
	require.NoError(t, s.Start(t.Context()))
	require.Error(t, s.Start(t.Context()))
	addr := s.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Nil(t, s.Addr())
	// Stopping twice is a no-op
	require.NoError(t, s.Stop(ctx))
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(newTestGovernance(t))
	var root RootResponse
	rec := doGet(t, s, "/", &root)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "treasury", root.Name)
	assert.NotEmpty(t, root.Version)

	var health HealthResponse
	doGet(t, s, "/health", &health)
	assert.True(t, health.IsHealthy)

	rec = doGet(t, s, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(newTestGovernance(t))
	var status StatusResponse
	rec := doGet(t, s, "/api/v1/status", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chainparams.NetworkRegtest, status.Network)
	assert.Equal(t, int64(1000), status.Height)
	assert.Equal(t, int64(1008), status.NextSuperblock)
	assert.Equal(t, int64(8), status.BlocksToSuperblock)
	assert.Equal(t, 7300*chainparams.Coin, status.TotalBudget)
	assert.Equal(t, 2, status.Proposals)
	assert.Equal(t, 7, status.ProposalVotes)
}

func TestProposals(t *testing.T) {
	gov := newTestGovernance(t)
	s := newTestServer(gov)
	var proposals []ProposalResponse
	rec := doGet(t, s, "/api/v1/proposals", &proposals)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proposals, 2)
	assert.Equal(t, "2", rec.Header().Get("X-Pagination-Count-Total"))
	assert.Equal(t, "alpha", proposals[0].Name)
	assert.Equal(t, int64(2), proposals[0].TotalPaymentCount)
	assert.True(t, proposals[0].IsEstablished)
	assert.True(t, proposals[0].IsValid)
	assert.Equal(t, "76a914", proposals[0].Payee)

	rec = doGet(t, s, "/api/v1/proposals?count=1&page=2", &proposals)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proposals, 1)
	assert.Equal(t, "beta", proposals[0].Name)
	assert.Equal(t, "2", rec.Header().Get("X-Pagination-Page-Total"))

	rec = doGet(t, s, "/api/v1/proposals?order=desc", &proposals)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "beta", proposals[0].Name)

	rec = doGet(t, s, "/api/v1/proposals?order=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposalLookup(t *testing.T) {
	gov := newTestGovernance(t)
	s := newTestServer(gov)
	var p ProposalResponse
	rec := doGet(t, s, "/api/v1/proposals/beta", &p)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gov.proposals[1].Hash().String(), p.Hash)

	rec = doGet(t, s, "/api/v1/proposals/"+gov.proposals[0].Hash().String(), &p)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", p.Name)

	rec = doGet(t, s, "/api/v1/proposals/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBudgetProjection(t *testing.T) {
	s := newTestServer(newTestGovernance(t))
	var resp BudgetResponse
	rec := doGet(t, s, "/api/v1/budget", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1008), resp.BlockStart)
	assert.Equal(t, int64(1151), resp.BlockEnd)
	require.Len(t, resp.Proposals, 1)
	assert.Equal(t, "alpha", resp.Proposals[0].Name)
}

func TestFinalizedBudgets(t *testing.T) {
	gov := newTestGovernance(t)
	s := newTestServer(gov)
	var budgets []FinalizedBudgetResponse
	rec := doGet(t, s, "/api/v1/finalized", &budgets)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, budgets, 1)
	assert.Equal(t, "main", budgets[0].Name)
	assert.Equal(t, "OK", budgets[0].Status)
	assert.Equal(t, 150*chainparams.Coin, budgets[0].TotalPayout)
	require.Len(t, budgets[0].Payments, 2)
	assert.Equal(t, int64(1009), budgets[0].Payments[1].Height)

	var fb FinalizedBudgetResponse
	hash := gov.budgets[0].Hash().String()
	rec = doGet(t, s, "/api/v1/finalized/"+hash, &fb)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, hash, fb.Hash)

	rec = doGet(t, s, "/api/v1/finalized/zz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doGet(t, s, "/api/v1/finalized/"+budget.Hash{0xff}.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayee(t *testing.T) {
	gov := newTestGovernance(t)
	s := newTestServer(gov)
	var resp PayeeResponse
	rec := doGet(t, s, "/api/v1/payee/1009", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.IsPaymentBlock)
	assert.Equal(t, gov.proposals[1].Hash().String(), resp.ProposalHash)
	assert.Equal(t, 50*chainparams.Coin, resp.Amount)

	var none PayeeResponse
	rec = doGet(t, s, "/api/v1/payee/2000", &none)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, none.IsPaymentBlock)
	assert.Equal(t, "unknown-budget", none.Required)
	assert.Empty(t, none.Payee)

	rec = doGet(t, s, "/api/v1/payee/-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
