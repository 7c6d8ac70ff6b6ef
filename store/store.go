package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/duotale/duotale/config"
	redis_db "github.com/duotale/duotale/internal/redis-db"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datastore
var once sync.Once

type Datastore struct {
	Redis   redis.UniversalClient
	DataDir string
}

// NewDataStore opens a datastore for the given configuration. Every call
// builds a fresh connection, so callers with short-lived stores (tests,
// one-shot commands) do not share state.
func NewDataStore(configuration *config.Configuration) (IDataStore, error) {
	client, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns})
	if err != nil {
		return nil, err
	}
	if err := ensureLayout(configuration.Data.Dir); err != nil {
		return nil, err
	}
	return &Datastore{Redis: client.Client(), DataDir: configuration.Data.Dir}, nil
}

// GetStoreConnection provides a global access point to the instance and initializes it if it's not already.
func GetStoreConnection(configuration *config.Configuration) (*Datastore, error) {
	var err error
	once.Do(func() {
		client, errConn := redis_db.NewRedisClient([]string{configuration.Redis.Dns})
		if errConn != nil {
			err = errConn
			return
		}
		if errDir := ensureLayout(configuration.Data.Dir); errDir != nil {
			err = errDir
			return
		}
		instance = &Datastore{Redis: client.Client(), DataDir: configuration.Data.Dir}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ensureLayout creates the artifact directory tree so later writes only ever
// create per-lesson folders.
func ensureLayout(dataDir string) error {
	for _, dir := range []string{
		filepath.Join(dataDir, "lessons"),
		filepath.Join(dataDir, "series"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
