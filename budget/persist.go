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

package budget

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"golang.org/x/crypto/blake2b"
)

const snapshotMagic = "MasternodeBudget"

var (
	ErrSnapshotTruncated = errors.New("budget snapshot truncated")
	ErrChecksumMismatch  = errors.New("budget snapshot checksum mismatch")
	ErrInvalidMagic      = errors.New("invalid budget snapshot magic")
	ErrInvalidNetwork    = errors.New("invalid budget snapshot network magic")
	ErrInvalidFormat     = errors.New("invalid budget snapshot format")
)

// SnapshotStore persists the encoded manager state. Load returns an error
// matching fs.ErrNotExist when nothing was saved yet.
type SnapshotStore interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

type OrphanVoteRecord struct {
	cbor.StructAsArray
	Vote     Vote
	Received int64
}

type OrphanFinalizedVoteRecord struct {
	cbor.StructAsArray
	Vote     FinalizedBudgetVote
	Received int64
}

type ProposalRecord struct {
	cbor.StructAsArray
	Broadcast ProposalBroadcast
	Votes     []Vote
}

type FinalizedRecord struct {
	cbor.StructAsArray
	Broadcast FinalizedBudgetBroadcast
	Votes     []FinalizedBudgetVote
}

// Snapshot is the persisted form of the manager state
type Snapshot struct {
	cbor.StructAsArray
	SeenProposals        []ProposalBroadcast
	SeenProposalVotes    []Vote
	OrphanProposalVotes  []OrphanVoteRecord
	SeenFinalizedBudgets []FinalizedBudgetBroadcast
	SeenFinalizedVotes   []FinalizedBudgetVote
	OrphanFinalizedVotes []OrphanFinalizedVoteRecord
	Proposals            []ProposalRecord
	FinalizedBudgets     []FinalizedRecord
}

func sortByHash[T interface{ Hash() Hash }](items []T) {
	slices.SortFunc(items, func(a, b T) int {
		return a.Hash().Compare(b.Hash())
	})
}

// snapshot captures the manager state, taking each lock in turn
func (m *Manager) snapshot() *Snapshot {
	ret := &Snapshot{}
	m.proposalsMu.Lock()
	for _, b := range m.seenProposals {
		ret.SeenProposals = append(ret.SeenProposals, b)
	}
	for _, p := range m.proposals {
		ret.Proposals = append(ret.Proposals, ProposalRecord{
			Broadcast: p.Broadcast(),
			Votes:     p.Votes(),
		})
	}
	m.proposalsMu.Unlock()
	m.votesMu.Lock()
	for _, v := range m.seenProposalVotes {
		ret.SeenProposalVotes = append(ret.SeenProposalVotes, v)
	}
	for _, o := range m.orphanProposalVotes {
		ret.OrphanProposalVotes = append(ret.OrphanProposalVotes, OrphanVoteRecord{
			Vote:     o.vote,
			Received: o.received.Unix(),
		})
	}
	m.votesMu.Unlock()
	m.budgetsMu.Lock()
	for _, b := range m.seenFinalizedBudgets {
		ret.SeenFinalizedBudgets = append(ret.SeenFinalizedBudgets, b)
	}
	for _, f := range m.finalizedBudgets {
		ret.FinalizedBudgets = append(ret.FinalizedBudgets, FinalizedRecord{
			Broadcast: f.Broadcast(),
			Votes:     f.Votes(),
		})
	}
	m.budgetsMu.Unlock()
	m.finalizedVotesMu.Lock()
	for _, v := range m.seenFinalizedVotes {
		ret.SeenFinalizedVotes = append(ret.SeenFinalizedVotes, v)
	}
	for _, o := range m.orphanFinalizedVotes {
		ret.OrphanFinalizedVotes = append(
			ret.OrphanFinalizedVotes,
			OrphanFinalizedVoteRecord{
				Vote:     o.vote,
				Received: o.received.Unix(),
			},
		)
	}
	m.finalizedVotesMu.Unlock()

	sortByHash(ret.SeenProposals)
	sortByHash(ret.SeenProposalVotes)
	sortByHash(ret.SeenFinalizedBudgets)
	sortByHash(ret.SeenFinalizedVotes)
	slices.SortFunc(ret.OrphanProposalVotes, func(a, b OrphanVoteRecord) int {
		return a.Vote.Hash().Compare(b.Vote.Hash())
	})
	slices.SortFunc(
		ret.OrphanFinalizedVotes,
		func(a, b OrphanFinalizedVoteRecord) int {
			return a.Vote.Hash().Compare(b.Vote.Hash())
		},
	)
	slices.SortFunc(ret.Proposals, func(a, b ProposalRecord) int {
		return a.Broadcast.Hash().Compare(b.Broadcast.Hash())
	})
	slices.SortFunc(ret.FinalizedBudgets, func(a, b FinalizedRecord) int {
		return a.Broadcast.Hash().Compare(b.Broadcast.Hash())
	})
	return ret
}

// restore replaces the manager state with the snapshot contents
func (m *Manager) restore(snap *Snapshot) {
	m.reset()
	m.proposalsMu.Lock()
	for _, b := range snap.SeenProposals {
		m.seenProposals[b.Hash()] = b
	}
	for _, rec := range snap.Proposals {
		p := rec.Broadcast.ToProposal()
		for _, v := range rec.Votes {
			p.votes[v.Voter] = v
		}
		m.proposals[p.Hash()] = p
	}
	m.proposalsMu.Unlock()
	m.votesMu.Lock()
	for _, v := range snap.SeenProposalVotes {
		m.seenProposalVotes[v.Hash()] = v
	}
	for _, rec := range snap.OrphanProposalVotes {
		m.orphanProposalVotes[rec.Vote.Hash()] = orphanVote[Vote]{
			vote:     rec.Vote,
			received: time.Unix(rec.Received, 0),
		}
	}
	m.votesMu.Unlock()
	m.budgetsMu.Lock()
	for _, b := range snap.SeenFinalizedBudgets {
		m.seenFinalizedBudgets[b.Hash()] = b
	}
	for _, rec := range snap.FinalizedBudgets {
		f := rec.Broadcast.ToFinalizedBudget()
		for _, v := range rec.Votes {
			f.votes[v.Voter] = v
		}
		m.finalizedBudgets[f.Hash()] = f
	}
	m.budgetsMu.Unlock()
	m.finalizedVotesMu.Lock()
	for _, v := range snap.SeenFinalizedVotes {
		m.seenFinalizedVotes[v.Hash()] = v
	}
	for _, rec := range snap.OrphanFinalizedVotes {
		m.orphanFinalizedVotes[rec.Vote.Hash()] = orphanVote[FinalizedBudgetVote]{
			vote:     rec.Vote,
			received: time.Unix(rec.Received, 0),
		}
	}
	m.finalizedVotesMu.Unlock()
	m.updateGauges()
}

// EncodeSnapshot frames a snapshot as magic, network magic, CBOR body and
// a checksum over everything before it
func EncodeSnapshot(snap *Snapshot, networkMagic [4]byte) ([]byte, error) {
	body, err := cbor.Encode(snap)
	if err != nil {
		return nil, fmt.Errorf("encode budget snapshot: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(snapshotMagic)))
	buf.WriteString(snapshotMagic)
	buf.Write(networkMagic[:])
	buf.Write(body)
	sum := blake2b.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// VerifySnapshot checks the checksum and header and returns the body
func VerifySnapshot(data []byte, networkMagic [4]byte) ([]byte, error) {
	headerLen := 1 + len(snapshotMagic) + len(networkMagic)
	if len(data) < headerLen+HashSize {
		return nil, ErrSnapshotTruncated
	}
	payload := data[:len(data)-HashSize]
	sum := blake2b.Sum256(payload)
	if !bytes.Equal(sum[:], data[len(data)-HashSize:]) {
		return nil, ErrChecksumMismatch
	}
	magicLen := int(payload[0])
	if magicLen != len(snapshotMagic) ||
		string(payload[1:1+magicLen]) != snapshotMagic {
		return nil, ErrInvalidMagic
	}
	if !bytes.Equal(payload[1+magicLen:headerLen], networkMagic[:]) {
		return nil, ErrInvalidNetwork
	}
	return payload[headerLen:], nil
}

// DecodeSnapshot verifies and decodes an encoded snapshot
func DecodeSnapshot(data []byte, networkMagic [4]byte) (*Snapshot, error) {
	body, err := VerifySnapshot(data, networkMagic)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if _, err := cbor.Decode(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return &snap, nil
}

// Load replaces the manager state with the stored snapshot and revalidates
// it. On any decode failure the state is cleared.
func (m *Manager) Load(store SnapshotStore) error {
	start := time.Now()
	data, err := store.Load()
	if err != nil {
		return fmt.Errorf("load budget snapshot: %w", err)
	}
	snap, err := DecodeSnapshot(data, m.config.Params.NetworkMagic)
	if err != nil {
		m.Clear()
		return err
	}
	m.restore(snap)
	m.CheckAndRemove()
	m.logger.Info(
		"loaded budget snapshot",
		"state", m.String(),
		"duration", time.Since(start).String(),
	)
	return nil
}

// Dump writes the manager state to store. An existing snapshot with an
// unrecognized header is left alone.
func (m *Manager) Dump(store SnapshotStore) error {
	start := time.Now()
	existing, err := store.Load()
	switch {
	case err == nil:
		if _, err := DecodeSnapshot(existing, m.config.Params.NetworkMagic); err != nil &&
			!errors.Is(err, ErrInvalidFormat) {
			m.metrics.snapshotWrites.WithLabelValues("aborted").Inc()
			return fmt.Errorf("existing budget snapshot not recognized: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		m.logger.Debug("no budget snapshot found, creating a new one")
	default:
		m.metrics.snapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("read existing budget snapshot: %w", err)
	}
	data, err := EncodeSnapshot(m.snapshot(), m.config.Params.NetworkMagic)
	if err != nil {
		m.metrics.snapshotWrites.WithLabelValues("error").Inc()
		return err
	}
	if err := store.Save(data); err != nil {
		m.metrics.snapshotWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("save budget snapshot: %w", err)
	}
	m.metrics.snapshotWrites.WithLabelValues("ok").Inc()
	m.logger.Debug(
		"wrote budget snapshot",
		"bytes", len(data),
		"duration", time.Since(start).String(),
	)
	return nil
}
