package db

import (
	"time"

	"gorm.io/gorm"

	"example.com/safegear/services/ppe/internal/metrics"
)

// RegisterMetricsHooks registers GORM hooks that feed database query metrics
func RegisterMetricsHooks(db *gorm.DB) {
	db.Callback().Create().After("gorm:create").Register("metrics:create", func(db *gorm.DB) {
		metrics.GetCollector().RecordDatabaseQuery(metrics.DBQueryTypeInsert, db.Error == nil, getDuration(db))
	})
	db.Callback().Query().After("gorm:query").Register("metrics:query", func(db *gorm.DB) {
		metrics.GetCollector().RecordDatabaseQuery(metrics.DBQueryTypeSelect, db.Error == nil, getDuration(db))
	})
	db.Callback().Update().After("gorm:update").Register("metrics:update", func(db *gorm.DB) {
		metrics.GetCollector().RecordDatabaseQuery(metrics.DBQueryTypeUpdate, db.Error == nil, getDuration(db))
	})
	db.Callback().Delete().After("gorm:delete").Register("metrics:delete", func(db *gorm.DB) {
		metrics.GetCollector().RecordDatabaseQuery(metrics.DBQueryTypeDelete, db.Error == nil, getDuration(db))
	})
}

func getDuration(db *gorm.DB) time.Duration {
	if start, ok := db.InstanceGet("start_time"); ok {
		return time.Since(start.(time.Time))
	}
	return 0
}

func markStart(db *gorm.DB) {
	db.InstanceSet("start_time", time.Now())
}

// RegisterDurationHooks registers hooks that stamp query start times
func RegisterDurationHooks(db *gorm.DB) {
	db.Callback().Create().Before("gorm:create").Register("duration:create", markStart)
	db.Callback().Query().Before("gorm:query").Register("duration:query", markStart)
	db.Callback().Update().Before("gorm:update").Register("duration:update", markStart)
	db.Callback().Delete().Before("gorm:delete").Register("duration:delete", markStart)
}
