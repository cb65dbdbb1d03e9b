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

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/internal/test/testutil"
	"github.com/blinklabs-io/treasury/keystore"
	"github.com/blinklabs-io/treasury/msgsign"
	"github.com/blinklabs-io/treasury/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSnapshot(t *testing.T) ([]byte, budget.Hash) {
	t.Helper()
	params := &chainparams.Regtest
	keyHash := make([]byte, 20)
	keyHash[0] = 0x42
	b := budget.NewProposalBroadcast(
		params,
		"alpha",
		"https://example.com/alpha",
		2,
		budget.PayToPubKeyHashScript(keyHash),
		100*chainparams.Coin,
		1008,
		budget.Hash{0x01},
	)
	b.Time = time.Now().Add(-time.Hour).Unix()
	vote := budget.NewVote(
		budget.Outpoint{Hash: budget.Hash{0x02}, Index: 0},
		b.Hash(),
		budget.VoteYes,
		time.Now(),
	)
	data, err := budget.EncodeSnapshot(&budget.Snapshot{
		SeenProposals:     []budget.ProposalBroadcast{b},
		SeenProposalVotes: []budget.Vote{vote},
		Proposals: []budget.ProposalRecord{
			{Broadcast: b, Votes: []budget.Vote{vote}},
		},
	}, params.NetworkMagic)
	require.NoError(t, err)
	return data, b.Hash()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Network = chainparams.NetworkRegtest
	cfg.DataDir = t.TempDir()
	return cfg
}

func writeSnapshotFile(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, store.DefaultFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "treasury devel")
}

func TestRunVerify(t *testing.T) {
	cfg := testConfig(t)
	data, _ := testSnapshot(t)
	writeSnapshotFile(t, cfg.DataDir, data)

	var out bytes.Buffer
	require.NoError(t, runVerify(&out, cfg, "", testutil.DiscardLogger()))
	assert.Contains(t, out.String(), "snapshot OK: network=regtest")
	assert.Contains(t, out.String(), "proposals=1")

	// Wrong network
	cfg.Network = chainparams.NetworkMainnet
	err := runVerify(&out, cfg, "", testutil.DiscardLogger())
	require.ErrorIs(t, err, budget.ErrInvalidNetwork)

	// Corrupted body
	cfg.Network = chainparams.NetworkRegtest
	bad := bytes.Clone(data)
	bad[len(bad)/2] ^= 0xff
	path := writeSnapshotFile(t, t.TempDir(), bad)
	err = runVerify(&out, cfg, path, testutil.DiscardLogger())
	require.ErrorIs(t, err, budget.ErrChecksumMismatch)

	// Missing snapshot
	cfg.DataDir = t.TempDir()
	err = runVerify(&out, cfg, "", testutil.DiscardLogger())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunVerifyBadger(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotStore = "badger"
	data, _ := testSnapshot(t)
	s, err := store.NewBadgerStore(
		store.WithDataDir(filepath.Join(cfg.DataDir, "snapshot")),
		store.WithGc(false),
	)
	require.NoError(t, err)
	require.NoError(t, s.Save(data))
	require.NoError(t, s.Close())

	var out bytes.Buffer
	require.NoError(t, runVerify(&out, cfg, "", testutil.DiscardLogger()))
	assert.Contains(t, out.String(), "snapshot OK")
}

func TestRunInspect(t *testing.T) {
	cfg := testConfig(t)
	data, hash := testSnapshot(t)
	path := writeSnapshotFile(t, t.TempDir(), data)

	var out bytes.Buffer
	require.NoError(t, runInspect(&out, cfg, path, 1000, 5, testutil.DiscardLogger()))
	var report inspectReport
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "regtest", report.Network)
	assert.Equal(t, int64(1000), report.Height)
	assert.Equal(t, int64(1008), report.NextSuperblock)
	assert.Equal(t, chainparams.Regtest.TotalBudget(1008), report.TotalBudget)
	require.Len(t, report.Proposals, 1)
	p := report.Proposals[0]
	assert.Equal(t, hash.String(), p.Hash)
	assert.Equal(t, "alpha", p.Name)
	assert.Equal(t, 1, p.Yeas)
	assert.Zero(t, p.Nays)
	assert.True(t, p.Valid)
	assert.Empty(t, report.FinalizedBudgets)
}

func TestRunInspectInvalidSnapshot(t *testing.T) {
	cfg := testConfig(t)
	path := writeSnapshotFile(t, t.TempDir(), []byte("garbage"))
	var out bytes.Buffer
	err := runInspect(&out, cfg, path, 1000, 5, testutil.DiscardLogger())
	require.ErrorIs(t, err, budget.ErrSnapshotTruncated)
	assert.Empty(t, out.String())
}

func TestRootCommandFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	data, _ := testSnapshot(t)
	writeSnapshotFile(t, dir, data)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--network", "regtest", "--data-dir", dir, "verify"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "snapshot OK: network=regtest")

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--network", "nowhere", "verify"})
	assert.Error(t, cmd.Execute())
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "masternode.skey")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keygen", "--out", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "public key: ")

	key, err := keystore.LoadSigningKey(path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), hex.EncodeToString(msgsign.PublicKeyBytes(key)))

	// Refuses to overwrite
	assert.Error(t, runKeygen(&out, path, ""))
	assert.Error(t, runKeygen(&out, "", ""))
}
