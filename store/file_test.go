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

package store_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/treasury/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissing(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = s.Load()
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, store.DefaultFileName), s.Path())

	require.NoError(t, s.Save([]byte("first")))
	data, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	require.NoError(t, s.Save([]byte("second")))
	data, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.DefaultFileName, entries[0].Name())
}

func TestFileStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := store.NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save([]byte{0x01}))
	_, err = os.Stat(filepath.Join(dir, store.DefaultFileName))
	assert.NoError(t, err)
}

func TestFileStoreRequiresDir(t *testing.T) {
	_, err := store.NewFileStore("", nil)
	assert.Error(t, err)
}
