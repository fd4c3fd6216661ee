package database

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DQYXACML/calltrace/config"
	_ "github.com/DQYXACML/calltrace/database/utils/serializers"
	"github.com/DQYXACML/calltrace/database/worker"
	"github.com/DQYXACML/calltrace/tracing/arena"
)

type DB struct {
	gorm *gorm.DB

	CallTraces     worker.CallTraceDB
	TraceAddresses worker.TraceAddressDB
}

func NewDB(ctx context.Context, dbConfig config.DBConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s dbname=%s sslmode=disable", dbConfig.Host, dbConfig.Name)
	if dbConfig.Port != 0 {
		dsn += fmt.Sprintf(" port=%d", dbConfig.Port)
	}
	if dbConfig.User != "" {
		dsn += fmt.Sprintf(" user=%s", dbConfig.User)
	}
	if dbConfig.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dbConfig.Password)
	}

	gormConfig := gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        3_000,
	}
	gorm, err := gorm.Open(postgres.Open(dsn), &gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return newDB(gorm.WithContext(ctx)), nil
}

func newDB(g *gorm.DB) *DB {
	return &DB{
		gorm:           g,
		CallTraces:     worker.NewCallTraceDB(g),
		TraceAddresses: worker.NewTraceAddressDB(g),
	}
}

func (db *DB) Transaction(fn func(db *DB) error) error {
	return db.gorm.Transaction(func(tx *gorm.DB) error {
		return fn(newDB(tx))
	})
}

// StoreCallTrace persists the arena of one transaction together with the
// addresses it touched, in a single transaction.
func (db *DB) StoreCallTrace(txHash common.Hash, blockNumber *big.Int, success bool, a *arena.CallTraceArena) (uuid.UUID, error) {
	record, err := worker.NewCallTraceRecord(txHash, blockNumber, success, a)
	if err != nil {
		return uuid.Nil, err
	}
	addresses := worker.TraceAddressesFromArena(record.GUID, a)

	err = db.Transaction(func(tx *DB) error {
		if err := tx.CallTraces.StoreCallTrace(record); err != nil {
			return errors.Wrap(err, "store call trace")
		}
		if err := tx.TraceAddresses.StoreTraceAddresses(addresses); err != nil {
			return errors.Wrap(err, "store trace addresses")
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	log.Info("stored call trace", "txHash", txHash.Hex(), "guid", record.GUID, "nodes", record.NodeCount, "addresses", len(addresses))
	return record.GUID, nil
}

func (db *DB) Close() error {
	sql, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sql.Close()
}

// ExecuteSQLMigration runs every file under migrationsFolder in lexical order
func (db *DB) ExecuteSQLMigration(migrationsFolder string) error {
	var files []string
	err := filepath.Walk(migrationsFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Failed to process migration file: %s", path))
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, path := range files {
		fileContent, readErr := os.ReadFile(path)
		if readErr != nil {
			return errors.Wrap(readErr, fmt.Sprintf("Error reading SQL file: %s", path))
		}
		if execErr := db.gorm.Exec(string(fileContent)).Error; execErr != nil {
			return errors.Wrap(execErr, fmt.Sprintf("Error executing SQL script: %s", path))
		}
		log.Info("applied migration", "file", path)
	}
	return nil
}
