package core

import (
	"fmt"
	"os"

	"forestcore/internal/infra/persistence/memory"
	"forestcore/internal/infra/persistence/postgres"
	"forestcore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	FORESTCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FORESTCORE_SQLITE_PATH: path to sqlite file (default ./forestcore.db)
//	FORESTCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("FORESTCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	return OpenPersistentStoreWithDriver(StorageDriver(driver), engine)
}

// OpenPersistentStoreWithDriver opens a specific backend.
func OpenPersistentStoreWithDriver(driver StorageDriver, engine *RulesEngine) (PersistentStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("FORESTCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("FORESTCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
