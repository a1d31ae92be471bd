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

// Package gormstore implements the action log store on top of gorm. The
// dialect specific cache plugins open a connection and hand it over.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	logcache "github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/proposal"
)

// LogRecord holds the action log of one proposal
type LogRecord struct {
	ChainID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ProposalKey   string `gorm:"primaryKey;size:191"`
	PluginAddress string `gorm:"index;size:42"`
	Kind          string `gorm:"size:32"`
	Entries       string `gorm:"type:text"`
	UpdatedAt     time.Time
}

func (LogRecord) TableName() string {
	return "action_log"
}

// Config returns the gorm configuration shared by every dialect
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
}

// Store persists action logs in a relational database
type Store struct {
	db *gorm.DB
}

var _ logcache.Store = (*Store)(nil)

// New enables tracing on db and creates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("configure tracing: %w", err)
	}
	if err := db.AutoMigrate(&LogRecord{}); err != nil {
		return nil, fmt.Errorf("migrate action log: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Get(ctx context.Context, key logcache.Key) (*logcache.Log, error) {
	var rec LogRecord
	result := s.db.WithContext(ctx).
		Where("chain_id = ? AND proposal_key = ?", key.ChainID, key.Proposal).
		Take(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	l, err := rec.toLog()
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) Set(ctx context.Context, l logcache.Log) error {
	rec, err := fromLog(l)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec)
	return result.Error
}

func (s *Store) Remove(ctx context.Context, key logcache.Key) error {
	result := s.db.WithContext(ctx).
		Where("chain_id = ? AND proposal_key = ?", key.ChainID, key.Proposal).
		Delete(&LogRecord{})
	return result.Error
}

func (s *Store) ListByPluginAddress(
	ctx context.Context,
	chainID uint64,
	pluginAddress string,
) ([]logcache.Log, error) {
	var recs []LogRecord
	result := s.db.WithContext(ctx).
		Where(
			"chain_id = ? AND plugin_address = ?",
			chainID,
			proposal.NormalizeAddress(pluginAddress),
		).
		Order("proposal_key").
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make([]logcache.Log, 0, len(recs))
	for _, rec := range recs {
		l, err := rec.toLog()
		if err != nil {
			return nil, err
		}
		ret = append(ret, l)
	}
	return ret, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

func fromLog(l logcache.Log) (LogRecord, error) {
	entries, err := json.Marshal(l.Entries)
	if err != nil {
		return LogRecord{}, fmt.Errorf("encode entries: %w", err)
	}
	return LogRecord{
		ChainID:       l.ChainID,
		ProposalKey:   l.ProposalKey,
		PluginAddress: proposal.NormalizeAddress(l.PluginAddress),
		Kind:          string(l.Kind),
		Entries:       string(entries),
	}, nil
}

func (r LogRecord) toLog() (logcache.Log, error) {
	l := logcache.Log{
		ChainID:       r.ChainID,
		ProposalKey:   r.ProposalKey,
		PluginAddress: r.PluginAddress,
		Kind:          proposal.Kind(r.Kind),
	}
	if err := json.Unmarshal([]byte(r.Entries), &l.Entries); err != nil {
		return logcache.Log{}, fmt.Errorf("decode entries of %s: %w", r.ProposalKey, err)
	}
	return l, nil
}
