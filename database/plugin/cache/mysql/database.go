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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/blinklabs-io/daogov/database/plugin/cache/gormstore"
)

// MySQL error number for an unknown database
const errUnknownDatabase = 1049

// CacheStoreMysql keeps action logs in MySQL
type CacheStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger

	host     string
	port     uint
	user     string
	password string
	database string
	tls      string
	timeZone string
	dsn      string // overrides the individual connection options
}

// NewWithOptions creates a MySQL cache store. The connection is opened by
// Start.
func NewWithOptions(opts ...MysqlOptionFunc) (*CacheStoreMysql, error) {
	db := &CacheStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 3306
	}
	if db.user == "" {
		db.user = "root"
	}
	if db.database == "" {
		db.database = "daogov"
	}
	if db.timeZone == "" {
		db.timeZone = "UTC"
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// Config returns the driver configuration used by Start
func (d *CacheStoreMysql) Config() (*mysql.Config, error) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		return cfg, nil
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.host, strconv.FormatUint(uint64(d.port), 10))
	cfg.DBName = d.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	if loc, err := time.LoadLocation(d.timeZone); err == nil {
		cfg.Loc = loc
	}
	if d.tls != "" {
		cfg.TLSConfig = d.tls
	}
	return cfg, nil
}

// Start implements the plugin.Plugin interface
func (d *CacheStoreMysql) Start() error {
	cfg, err := d.Config()
	if err != nil {
		return err
	}
	db, err := gorm.Open(gormmysql.Open(cfg.FormatDSN()), gormstore.Config())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != errUnknownDatabase {
			return err
		}
		if err := createDatabase(cfg); err != nil {
			return err
		}
		db, err = gorm.Open(gormmysql.Open(cfg.FormatDSN()), gormstore.Config())
		if err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := gormstore.New(db)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	d.Store = store
	d.logger.Info(
		"connected to mysql cache store",
		"component", "database",
		"addr", cfg.Addr,
		"database", cfg.DBName,
	)
	return nil
}

// createDatabase creates the configured database through a connection
// without a default schema
func createDatabase(cfg *mysql.Config) error {
	if cfg.DBName == "" {
		return errors.New("mysql dsn has no database name")
	}
	adminCfg := cfg.Clone()
	adminCfg.DBName = ""
	adminDb, err := gorm.Open(gormmysql.Open(adminCfg.FormatDSN()), gormstore.Config())
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s`",
		strings.ReplaceAll(cfg.DBName, "`", "``"),
	)
	return adminDb.Exec(stmt).Error
}

// Stop implements the plugin.Plugin interface
func (d *CacheStoreMysql) Stop() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
