// Package database defines the insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"analyzer-api/internal/shared"

	"go.uber.org/zap"
)

type DailyStats struct {
	UserID        uint64
	Agent         string
	RequestCount  uint64
	ErrorCount    uint64
	ChunksRelayed uint64
	TotalTime     int64
}

// SaveAgentRequests persists a batch of completed proxy calls: one row per
// request plus an upserted per-user per-agent daily aggregate.
func SaveAgentRequests(db *sql.DB, records []*shared.ProxyRecord, log *zap.SugaredLogger) error {
	if len(records) == 0 {
		return nil
	}

	requestSQLStr := `INSERT INTO agent_request (
            user_id, request_id, agent, stream,
            status_code, chunks_relayed, total_time, created_at
        ) VALUES`

	statsSQLStr := `INSERT INTO agent_daily_stats (
		date, user_id, agent, request_count, error_count, chunks_relayed, total_time
	) VALUES`

	today := time.Now().Format("2006-01-02")

	aggregated := make(map[string]*DailyStats)

	requestVals := []any{}
	statsVals := []any{}

	for _, rec := range records {
		key := fmt.Sprintf("%d:%s", rec.UserID, rec.Agent)
		if _, ok := aggregated[key]; !ok {
			aggregated[key] = &DailyStats{
				UserID: rec.UserID,
				Agent:  rec.Agent,
			}
		}
		existing := aggregated[key]
		existing.RequestCount += 1
		existing.ChunksRelayed += uint64(rec.ChunksRelayed)
		existing.TotalTime += rec.TotalTime.Milliseconds()
		if rec.StatusCode >= 400 {
			existing.ErrorCount += 1
		}

		requestSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?),"
		requestVals = append(requestVals,
			rec.UserID, rec.RequestID, rec.Agent, rec.Stream,
			rec.StatusCode, rec.ChunksRelayed, rec.TotalTime.Milliseconds(),
			rec.CreatedAt,
		)
	}

	for _, val := range aggregated {
		statsSQLStr += "(?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, today, val.UserID, val.Agent, val.RequestCount, val.ErrorCount, val.ChunksRelayed, val.TotalTime)
	}

	requestSQLStr = strings.TrimSuffix(requestSQLStr, ",")
	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		error_count = error_count + VALUES(error_count),
		chunks_relayed = chunks_relayed + VALUES(chunks_relayed),
		total_time = total_time + VALUES(total_time)`

	if _, err := db.Exec(requestSQLStr, requestVals...); err != nil {
		return fmt.Errorf("failed to save agent requests: %w", err)
	}

	if _, err := db.Exec(statsSQLStr, statsVals...); err != nil {
		return fmt.Errorf("failed to save agent daily stats: %w", err)
	}

	log.Debugw("Flushed agent requests", "count", len(records))
	return nil
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Execute all functions in the transaction
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	// Commit the transaction if all functions succeeded
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
