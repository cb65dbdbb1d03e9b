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

// Package archive keeps a SQLite audit index of every proposal, finalized
// budget and vote accepted by the budget manager.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/event"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const DefaultFileName = "archive.sqlite"

var ErrNotFound = errors.New("archive record not found")

var memoryDbSeq atomic.Uint64

// Archive records budget events in SQLite
type Archive struct {
	db      *gorm.DB
	logger  *slog.Logger
	mu      sync.Mutex
	bus     *event.EventBus
	subIds  map[event.EventType]event.EventSubscriberId
	dataDir string
}

// New opens the archive database. An empty dataDir uses a private in-memory
// database.
func New(dataDir string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var dsn string
	if dataDir == "" {
		dsn = fmt.Sprintf(
			"file:treasury-archive-%d?mode=memory&cache=shared",
			memoryDbSeq.Add(1),
		)
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		// WAL journal mode, increase cache size to 8MB (from 2MB)
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=cache_size(-8000)",
			filepath.Join(dataDir, DefaultFileName),
		)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, err
	}
	a := &Archive{
		db:      db,
		logger:  logger.With("component", "archive"),
		dataDir: dataDir,
		subIds:  make(map[event.EventType]event.EventSubscriberId),
	}
	if err := a.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = a.closeDb()
		return nil, err
	}
	for _, model := range MigrateModels {
		a.logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := a.db.AutoMigrate(model); err != nil {
			_ = a.closeDb()
			return nil, err
		}
	}
	return a, nil
}

// DB returns the database handle
func (a *Archive) DB() *gorm.DB {
	return a.db
}

// Attach subscribes the archive to the budget events published on bus
func (a *Archive) Attach(bus *event.EventBus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bus != nil {
		return
	}
	a.bus = bus
	for _, eventType := range []event.EventType{
		budget.ProposalAddedEventType,
		budget.FinalizedBudgetAddedEventType,
		budget.VoteAcceptedEventType,
		budget.EntryRemovedEventType,
	} {
		a.subIds[eventType] = bus.RegisterSubscriber(eventType, &subscriber{a: a})
	}
}

// Close detaches from the event bus and closes the database
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.bus != nil {
		for eventType, id := range a.subIds {
			a.bus.Unsubscribe(eventType, id)
		}
		clear(a.subIds)
		a.bus = nil
	}
	a.mu.Unlock()
	return a.closeDb()
}

func (a *Archive) closeDb() error {
	sqlDb, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

// subscriber feeds bus events into the archive. Write failures are logged
// and never unregister the archive.
type subscriber struct {
	a *Archive
}

func (s *subscriber) Deliver(evt event.Event) error {
	if err := s.a.HandleEvent(evt); err != nil {
		s.a.logger.Error(
			"failed to archive event",
			"type", evt.Type,
			"error", err,
		)
	}
	return nil
}

func (s *subscriber) Close() {}

// HandleEvent records a single budget event
func (a *Archive) HandleEvent(evt event.Event) error {
	switch data := evt.Data.(type) {
	case budget.ProposalAddedEvent:
		return a.RecordProposal(data)
	case budget.FinalizedBudgetAddedEvent:
		return a.RecordFinalizedBudget(data)
	case budget.VoteAcceptedEvent:
		return a.RecordVote(data)
	case budget.EntryRemovedEvent:
		return a.RecordRemoval(data, evt.Timestamp.Unix())
	default:
		return fmt.Errorf("unexpected event data %T", evt.Data)
	}
}

// RecordProposal stores a proposal. Existing records are left unchanged.
func (a *Archive) RecordProposal(evt budget.ProposalAddedEvent) error {
	rec := &Proposal{
		Hash:       evt.Hash.String(),
		Name:       evt.Name,
		URL:        evt.URL,
		Payee:      []byte(evt.Payee),
		Amount:     evt.Amount,
		BlockStart: evt.BlockStart,
		BlockEnd:   evt.BlockEnd,
		FeeTxHash:  evt.FeeTxHash.String(),
		Time:       evt.Time,
	}
	result := a.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("record proposal %s: %w", rec.Hash, result.Error)
	}
	return nil
}

// RecordFinalizedBudget stores a finalized budget and its payments
func (a *Archive) RecordFinalizedBudget(evt budget.FinalizedBudgetAddedEvent) error {
	rec := &FinalizedBudget{
		Hash:        evt.Hash.String(),
		Name:        evt.Name,
		BlockStart:  evt.BlockStart,
		TotalPayout: evt.TotalPayout,
		FeeTxHash:   evt.FeeTxHash.String(),
		Time:        evt.Time,
	}
	for i, p := range evt.Payments {
		rec.Payments = append(rec.Payments, FinalizedPayment{
			Position:     i,
			ProposalHash: p.ProposalHash.String(),
			Payee:        []byte(p.Payee),
			Amount:       p.Amount,
		})
	}
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&FinalizedBudget{}).Where("hash = ?", rec.Hash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("record finalized budget %s: %w", rec.Hash, err)
	}
	return nil
}

// RecordVote stores a proposal or finalized budget vote
func (a *Archive) RecordVote(evt budget.VoteAcceptedEvent) error {
	rec := &Vote{
		Hash:      evt.Hash.String(),
		Target:    evt.Target.String(),
		Voter:     evt.Voter.String(),
		Direction: evt.Direction.String(),
		Finalized: evt.Finalized,
		Time:      evt.Time,
	}
	result := a.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("record vote %s: %w", rec.Hash, result.Error)
	}
	return nil
}

// RecordRemoval marks an archived proposal or finalized budget as removed
func (a *Archive) RecordRemoval(evt budget.EntryRemovedEvent, at int64) error {
	var model any = &Proposal{}
	if evt.Finalized {
		model = &FinalizedBudget{}
	}
	result := a.db.Model(model).
		Where("hash = ? AND removed_at IS NULL", evt.Hash.String()).
		Updates(map[string]any{"removed_at": at, "reason": evt.Reason})
	if result.Error != nil {
		return fmt.Errorf("record removal %s: %w", evt.Hash, result.Error)
	}
	return nil
}
