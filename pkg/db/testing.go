package db

import (
	"fmt"
	"sync/atomic"

	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// NewTest opens an isolated in-memory SQLite database. Every call returns
// a fresh database so tests never share rows.
func NewTest() (*gorm.DB, error) {
	name := fmt.Sprintf("file:fintrack_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, err := gorm.Open(glebarez.Open(name), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return conn, nil
}
