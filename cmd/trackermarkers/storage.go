package main

import (
	"fmt"

	"github.com/jangxx/UniversalTrackerMarkers/internal/config"
	"github.com/jangxx/UniversalTrackerMarkers/internal/storage"
)

func initStorage() (storage.Store, error) {
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == "sqlite" {
		storageCfg.Path = resolvePath(ConfigDir, storageCfg.Path)
	}

	store, err := storage.NewStore(storageCfg)
	if err != nil {
		Logger.Error("Failed to create device store", "error", err)
		return nil, err
	}
	if err := store.Init(); err != nil {
		Logger.Error("Failed to initialize device store", "error", err)
		return nil, fmt.Errorf("initializing device store: %w", err)
	}

	Logger.Info("Device store initialized", "type", storageCfg.Type, "path", storageCfg.Path)
	return store, nil
}
