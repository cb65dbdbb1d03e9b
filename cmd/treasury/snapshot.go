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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/store"
)

// openSnapshotStore opens the snapshot store the daemon would use for cfg.
// The returned close func is never nil.
func openSnapshotStore(
	cfg *config.Config,
	logger *slog.Logger,
) (budget.SnapshotStore, func() error, error) {
	if cfg.DataDir == "" {
		return nil, nil, errors.New("no data directory configured")
	}
	switch cfg.SnapshotStore {
	case "badger":
		s, err := store.NewBadgerStore(
			store.WithDataDir(filepath.Join(cfg.DataDir, "snapshot")),
			store.WithLogger(logger),
			store.WithGc(false),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger snapshot store: %w", err)
		}
		return s, s.Close, nil
	default:
		s, err := store.NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

// readSnapshot returns the raw snapshot bytes from file, or from the
// configured store when file is empty
func readSnapshot(
	cfg *config.Config,
	file string,
	logger *slog.Logger,
) ([]byte, error) {
	if file != "" {
		return os.ReadFile(file)
	}
	s, closeFn, err := openSnapshotStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeFn() //nolint:errcheck
	return s.Load()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
