package metrics

import (
	"context"
	"database/sql"
	"time"
)

// StartDBStatsReporter 定期上报数据库连接池状态，ctx 取消后退出
func StartDBStatsReporter(ctx context.Context, db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			reportDBStats(db)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func reportDBStats(db *sql.DB) {
	stats := db.Stats()
	DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}
