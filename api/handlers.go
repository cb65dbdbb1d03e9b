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
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Name:    "treasury",
		Version: version.GetVersionString(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	params := s.gov.Params()
	height := s.gov.Height()
	next := params.NextSuperblock(height)
	c := s.gov.Counts()
	writeJSON(w, http.StatusOK, StatusResponse{
		Network:              params.Name,
		Height:               height,
		NextSuperblock:       next,
		BlocksToSuperblock:   next - height,
		TotalBudget:          params.TotalBudget(next),
		Proposals:            c.Proposals,
		SeenProposals:        c.SeenProposals,
		FinalizedBudgets:     c.FinalizedBudgets,
		SeenFinalizedBudgets: c.SeenFinalizedBudgets,
		ProposalVotes:        c.ProposalVotes,
		OrphanProposalVotes:  c.OrphanProposalVotes,
		FinalizedVotes:       c.FinalizedVotes,
		OrphanFinalizedVotes: c.OrphanFinalizedVotes,
		ImmatureProposals:    c.ImmatureProposals,
		ImmatureFinalized:    c.ImmatureFinalized,
	})
}

func (s *Server) proposalResponse(p *budget.Proposal) ProposalResponse {
	params := s.gov.Params()
	return ProposalResponse{
		Hash:                  p.Hash().String(),
		Name:                  p.Name,
		URL:                   p.URL,
		Payee:                 p.Payee.String(),
		Amount:                p.Amount,
		Allotted:              p.Allotted(),
		BlockStart:            p.BlockStart,
		BlockEnd:              p.BlockEnd,
		TotalPaymentCount:     p.TotalPaymentCount(params),
		RemainingPaymentCount: p.RemainingPaymentCount(params, s.gov.Height()),
		Yeas:                  p.Yeas(),
		Nays:                  p.Nays(),
		Abstains:              p.Abstains(),
		Ratio:                 p.Ratio(),
		FeeTxHash:             p.FeeTxHash.String(),
		IsEstablished:         p.IsEstablished(params, s.now()),
		IsValid:               p.IsValid(),
		InvalidReason:         p.InvalidReason(),
	}
}

// handleProposals handles GET /api/v1/proposals
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	proposals := s.gov.GetAllProposals()
	ret := make([]ProposalResponse, 0, len(proposals))
	for _, p := range proposals {
		ret = append(ret, s.proposalResponse(p))
	}
	writeJSON(w, http.StatusOK, Apply(w, page, ret))
}

// handleProposal handles GET /api/v1/proposals/{id}. The id is either a
// proposal hash or a proposal name.
func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var p *budget.Proposal
	var ok bool
	if h, err := budget.ParseHash(id); err == nil {
		p, ok = s.gov.GetProposal(h)
	}
	if !ok {
		p, ok = s.gov.FindProposalByName(id)
	}
	if !ok {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, s.proposalResponse(p))
}

// handleBudget handles GET /api/v1/budget
func (s *Server) handleBudget(w http.ResponseWriter, _ *http.Request) {
	params := s.gov.Params()
	start := params.NextSuperblock(s.gov.Height())
	funded := s.gov.GetBudget()
	ret := BudgetResponse{
		BlockStart:  start,
		BlockEnd:    start + params.BudgetCycleBlocks - 1,
		TotalBudget: params.TotalBudget(start),
		Proposals:   make([]ProposalResponse, 0, len(funded)),
	}
	for _, p := range funded {
		ret.Allotted += p.Allotted()
		ret.Proposals = append(ret.Proposals, s.proposalResponse(p))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) finalizedBudgetResponse(f *budget.FinalizedBudget) FinalizedBudgetResponse {
	ret := FinalizedBudgetResponse{
		Hash:          f.Hash().String(),
		Name:          f.Name,
		BlockStart:    f.BlockStart,
		BlockEnd:      f.BlockEnd(),
		TotalPayout:   f.TotalPayout(),
		VoteCount:     f.VoteCount(),
		FeeTxHash:     f.FeeTxHash.String(),
		Status:        s.gov.GetFinalizedBudgetStatus(f.Hash()),
		IsValid:       f.IsValid(),
		InvalidReason: f.InvalidReason(),
		Payments:      make([]PaymentResponse, 0, len(f.Payments)),
	}
	for i, p := range f.Payments {
		ret.Payments = append(ret.Payments, PaymentResponse{
			Height:       f.BlockStart + int64(i),
			ProposalHash: p.ProposalHash.String(),
			Payee:        p.Payee.String(),
			Amount:       p.Amount,
		})
	}
	return ret
}

// handleFinalizedBudgets handles GET /api/v1/finalized
func (s *Server) handleFinalizedBudgets(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	budgets := s.gov.GetFinalizedBudgets()
	ret := make([]FinalizedBudgetResponse, 0, len(budgets))
	for _, f := range budgets {
		ret = append(ret, s.finalizedBudgetResponse(f))
	}
	writeJSON(w, http.StatusOK, Apply(w, page, ret))
}

// handleFinalizedBudget handles GET /api/v1/finalized/{hash}
func (s *Server) handleFinalizedBudget(w http.ResponseWriter, r *http.Request) {
	h, err := budget.ParseHash(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid finalized budget hash")
		return
	}
	f, ok := s.gov.GetFinalizedBudget(h)
	if !ok {
		writeError(w, http.StatusNotFound, "finalized budget not found")
		return
	}
	writeJSON(w, http.StatusOK, s.finalizedBudgetResponse(f))
}

// handlePayee handles GET /api/v1/payee/{height}
func (s *Server) handlePayee(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseInt(r.PathValue("height"), 10, 64)
	if err != nil || height < 0 {
		writeError(w, http.StatusBadRequest, "invalid height")
		return
	}
	ret := PayeeResponse{
		Height:         height,
		IsPaymentBlock: s.gov.IsBudgetPaymentBlock(height),
		Required:       s.gov.GetRequiredPaymentsString(height),
	}
	if f, ok := s.gov.GetBudgetWithHighestVoteCount(height); ok {
		if p, ok := f.PaymentAt(height); ok {
			ret.BudgetHash = f.Hash().String()
			ret.ProposalHash = p.ProposalHash.String()
			ret.Payee = p.Payee.String()
			ret.Amount = p.Amount
		}
	}
	writeJSON(w, http.StatusOK, ret)
}
