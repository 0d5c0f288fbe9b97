package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// kvRecord is a single row of the kv_store table.
type kvRecord struct {
	Key   string `gorm:"column:key;primaryKey;size:512"`
	Value string `gorm:"column:value;type:text;not null"`
}

func (kvRecord) TableName() string { return "kv_store" }

// GormStore keeps every key in one relational table.
type GormStore struct {
	db     *gorm.DB
	driver string
	writeM sync.Mutex
}

// OpenGorm opens the sqlite or postgres backend and migrates the kv table.
func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		// each pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&kvRecord{}); err != nil {
		return nil, fmt.Errorf("migrate kv_store: %w", err)
	}
	return &GormStore{db: db, driver: driver}, nil
}

func (s *GormStore) Ready() bool {
	if s == nil || s.db == nil {
		return false
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

func (s *GormStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	return gormGet(s.db.WithContext(ctx), key, false)
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte) error {
	return gormSet(s.db.WithContext(ctx), key, value)
}

func (s *GormStore) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	return gormScan(s.db.WithContext(ctx), prefix)
}

func (s *GormStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// Get inside a transaction takes a row lock where the dialect supports it.
func (t *gormTx) Get(key string) ([]byte, error) { return gormGet(t.db, key, true) }

func (t *gormTx) Set(key string, value []byte) error { return gormSet(t.db, key, value) }

func (t *gormTx) Delete(key string) error {
	return t.db.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Delete(&kvRecord{}).Error
}

func (t *gormTx) ScanPrefix(prefix string) ([]Entry, error) { return gormScan(t.db, prefix) }

func gormGet(db *gorm.DB, key string, lock bool) ([]byte, error) {
	q := db.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key})
	if lock {
		// the sqlite dialect drops this clause; postgres takes a row lock
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec kvRecord
	if err := q.Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(rec.Value), nil
}

func gormSet(db *gorm.DB, key string, value []byte) error {
	rec := kvRecord{Key: key, Value: string(value)}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
}

// gormScan avoids LIKE, which is case-insensitive in sqlite and treats '_'
// as a wildcard, and re-sorts in Go because collation order is not byte order.
func gormScan(db *gorm.DB, prefix string) ([]Entry, error) {
	var recs []kvRecord
	q := db.Model(&kvRecord{})
	if prefix != "" {
		q = q.Where(`substr("key", 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, Entry{Key: r.Key, Value: []byte(r.Value)})
	}
	return out, nil
}
