/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sqlstore persists queued notifications and processed-resource
// markers in a SQL database. PostgreSQL (drivers "postgres" and "pgx"),
// MySQL ("mysql") and SQLite ("sqlite") are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/str"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMysql    = "mysql"
	DriverSqlite   = "sqlite"
)

// dialect 各数据库的语法差异
type dialect struct {
	blob string
	text string
	// insertIgnore builds an insert that skips rows violating a unique key
	insertIgnore func(table, columns, values, key string) string
}

var dialects = map[string]dialect{
	DriverPostgres: postgresDialect,
	DriverPgx:      postgresDialect,
	DriverMysql: {
		blob: "LONGBLOB",
		text: "VARCHAR(255)",
		insertIgnore: func(table, columns, values, key string) string {
			return "INSERT IGNORE INTO " + table + " (" + columns + ") VALUES (" + values + ")"
		},
	},
	DriverSqlite: {
		blob:         "BLOB",
		text:         "TEXT",
		insertIgnore: onConflictDoNothing,
	},
}

var postgresDialect = dialect{
	blob:         "BYTEA",
	text:         "VARCHAR(255)",
	insertIgnore: onConflictDoNothing,
}

func onConflictDoNothing(table, columns, values, key string) string {
	return "INSERT INTO " + table + " (" + columns + ") VALUES (" + values + ") ON CONFLICT (" + key + ") DO NOTHING"
}

// Store implements types.QueueStore and types.StoredResourceRepository.
type Store struct {
	db      *sql.DB
	driver  string
	dialect dialect
}

// Open opens the database and creates the tables when missing.
func Open(ctx context.Context, driverName, dsn string) (*Store, error) {
	if _, ok := dialects[driverName]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	s, err := New(ctx, db, driverName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New uses an open database.
func New(ctx context.Context, db *sql.DB, driverName string) (*Store, error) {
	d, ok := dialects[driverName]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
	if driverName == DriverSqlite {
		// sqlite 只允许一个写连接
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, driver: driverName, dialect: d}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	text, blob := s.dialect.text, s.dialect.blob
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS queued_items (
			id ` + text + ` NOT NULL,
			group_key ` + text + ` NOT NULL PRIMARY KEY,
			client_resource_id ` + text + ` NOT NULL,
			resource_type ` + text + ` NOT NULL,
			resource_id ` + text + ` NOT NULL,
			content_type ` + text + ` NOT NULL,
			payload ` + blob + `,
			received_at BIGINT NOT NULL,
			attempts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stored_resources (
			client_id ` + text + ` NOT NULL,
			stored_id ` + text + ` NOT NULL,
			stored_at BIGINT NOT NULL,
			PRIMARY KEY (client_id, stored_id)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// rebind 把 ? 占位符转换成驱动要求的格式
func (s *Store) rebind(query string) string {
	return str.ConvertDollarPlaceholder(query, s.driver)
}

func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Add stores item; false when an item with the same group key is stored.
func (s *Store) Add(ctx context.Context, item *types.QueuedItem) (bool, error) {
	columns := "id, group_key, client_resource_id, resource_type, resource_id, content_type, payload, received_at, attempts"
	query := s.dialect.insertIgnore("queued_items", columns, marks(9), "group_key")
	res, err := s.db.ExecContext(ctx, s.rebind(query), item.ID, item.GroupKey, item.ClientResourceID, item.ResourceType,
		item.ResourceID, item.ContentType, item.Payload, item.ReceivedAt.UnixMicro(), item.Attempts)
	if err != nil {
		return false, fmt.Errorf("insert queued item %s: %w", item.GroupKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Remove(ctx context.Context, groupKey string) error {
	query := s.rebind("DELETE FROM queued_items WHERE group_key = ?")
	if _, err := s.db.ExecContext(ctx, query, groupKey); err != nil {
		return fmt.Errorf("delete queued item %s: %w", groupKey, err)
	}
	return nil
}

// List returns the stored items ordered by receipt.
func (s *Store) List(ctx context.Context) ([]*types.QueuedItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, group_key, client_resource_id, resource_type, resource_id,
		content_type, payload, received_at, attempts FROM queued_items ORDER BY received_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select queued items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var items []*types.QueuedItem
	for rows.Next() {
		var item types.QueuedItem
		var receivedAt int64
		if err := rows.Scan(&item.ID, &item.GroupKey, &item.ClientResourceID, &item.ResourceType, &item.ResourceID,
			&item.ContentType, &item.Payload, &receivedAt, &item.Attempts); err != nil {
			return nil, fmt.Errorf("scan queued item: %w", err)
		}
		item.ReceivedAt = time.UnixMicro(receivedAt)
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *Store) Contains(ctx context.Context, clientID, storedID string) (bool, error) {
	var one int
	query := s.rebind("SELECT 1 FROM stored_resources WHERE client_id = ? AND stored_id = ?")
	err := s.db.QueryRowContext(ctx, query, clientID, storedID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select stored resource: %w", err)
	}
	return true, nil
}

// Store marks a resource version as processed. Storing it again is a no-op.
func (s *Store) Store(ctx context.Context, resource types.StoredResource) error {
	storedAt := resource.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	query := s.dialect.insertIgnore("stored_resources", "client_id, stored_id, stored_at", marks(3), "client_id, stored_id")
	if _, err := s.db.ExecContext(ctx, s.rebind(query), resource.ClientID, resource.StoredID, storedAt.UnixMicro()); err != nil {
		return fmt.Errorf("insert stored resource: %w", err)
	}
	return nil
}

var _ types.QueueStore = (*Store)(nil)
var _ types.StoredResourceRepository = (*Store)(nil)
