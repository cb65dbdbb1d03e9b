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

package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultGcInterval = 5 * time.Minute

var (
	snapshotKey         = []byte("budget/snapshot")
	previousSnapshotKey = []byte("budget/snapshot.prev")
)

// BadgerStore keeps the current snapshot and the one it replaced in a
// badger database
type BadgerStore struct {
	db           *badger.DB
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	metrics      *badgerMetrics
	gcTicker     *time.Ticker
	gcStopCh     chan struct{}
	gcWg         sync.WaitGroup
	closeOnce    sync.Once
	dataDir      string
	gcInterval   time.Duration
	gcEnabled    bool
}

type badgerMetrics struct {
	saves         prometheus.Counter
	snapshotBytes prometheus.Gauge
	gcRuns        prometheus.Counter
}

type BadgerStoreOptionFunc func(*BadgerStore)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BadgerStoreOptionFunc {
	return func(s *BadgerStore) {
		s.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) BadgerStoreOptionFunc {
	return func(s *BadgerStore) {
		s.promRegistry = registry
	}
}

// WithDataDir specifies the data directory. An empty value keeps the
// database in memory.
func WithDataDir(dataDir string) BadgerStoreOptionFunc {
	return func(s *BadgerStore) {
		s.dataDir = dataDir
	}
}

// WithGc specifies whether value log garbage collection is enabled
func WithGc(enabled bool) BadgerStoreOptionFunc {
	return func(s *BadgerStore) {
		s.gcEnabled = enabled
	}
}

// WithGcInterval specifies how often value log garbage collection runs
func WithGcInterval(interval time.Duration) BadgerStoreOptionFunc {
	return func(s *BadgerStore) {
		s.gcInterval = interval
	}
}

// NewBadgerStore opens the badger database
func NewBadgerStore(opts ...BadgerStoreOptionFunc) (*BadgerStore, error) {
	s := &BadgerStore{
		gcEnabled:  true,
		gcInterval: defaultGcInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(s.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		// Nothing to collect in memory
		s.gcEnabled = false
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(s.dataDir).
			WithLogger(NewBadgerLogger(s.logger)).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.Snappy)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.initMetrics()
	if s.gcEnabled && s.gcInterval > 0 {
		s.gcTicker = time.NewTicker(s.gcInterval)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGc(s.gcTicker, s.gcStopCh)
	}
	return s, nil
}

func (s *BadgerStore) initMetrics() {
	promautoFactory := promauto.With(s.promRegistry)
	s.metrics = &badgerMetrics{
		saves: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_store_snapshot_saves_total",
			Help: "number of budget snapshots written",
		}),
		snapshotBytes: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_store_snapshot_bytes",
			Help: "size of the last budget snapshot written",
		}),
		gcRuns: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "treasury_store_gc_runs_total",
			Help: "number of successful value log garbage collection runs",
		}),
	}
}

func (s *BadgerStore) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Warn(
							fmt.Sprintf("snapshot DB: GC failure: %s", err),
							"component", "store",
						)
					}
					break
				}
				s.metrics.gcRuns.Inc()
			}
		case <-stop:
			return
		}
	}
}

// Load returns the current snapshot. An empty database yields an error
// matching fs.ErrNotExist.
func (s *BadgerStore) Load() ([]byte, error) {
	return s.get(snapshotKey)
}

// LoadPrevious returns the snapshot replaced by the most recent Save
func (s *BadgerStore) LoadPrevious() ([]byte, error) {
	return s.get(previousSnapshotKey)
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var ret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("snapshot %q: %w", key, fs.ErrNotExist)
		}
		return nil, err
	}
	return ret, nil
}

// Save stores data as the current snapshot, keeping the prior one
func (s *BadgerStore) Save(data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		switch {
		case err == nil:
			prev, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Set(previousSnapshotKey, prev); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(snapshotKey, data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.metrics.saves.Inc()
	s.metrics.snapshotBytes.Set(float64(len(data)))
	return nil
}

// Close stops garbage collection and closes the database
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.gcTicker != nil {
			s.gcTicker.Stop()
			close(s.gcStopCh)
			s.gcWg.Wait()
		}
		err = s.db.Close()
	})
	return err
}
