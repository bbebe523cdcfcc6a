package storage

import (
	"github.com/google/wire"
)

// StorageSet is a Wire provider set that includes all storage-related providers
var StorageSet = wire.NewSet(
	NewDBClient,
	NewGormRuleStorage,
	NewGormOutcomeStorage,
	NewRedisClient,
	NewRedisRuleCache,
)
