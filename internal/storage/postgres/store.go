package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"defiFetch/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS logs (
	chain             TEXT        NOT NULL,
	address           TEXT        NOT NULL,
	block_number      BIGINT      NOT NULL,
	block_timestamp   TIMESTAMPTZ NOT NULL,
	block_hash        TEXT        NOT NULL DEFAULT '',
	transaction_hash  TEXT        NOT NULL,
	transaction_index INTEGER     NOT NULL,
	log_index         INTEGER     NOT NULL,
	topics            TEXT[]      NOT NULL,
	data              TEXT        NOT NULL,
	PRIMARY KEY (chain, transaction_hash, log_index)
);
CREATE INDEX IF NOT EXISTS logs_address_time_idx ON logs (chain, address, block_timestamp);
`

// Store reads raw logs from a bulk SQL warehouse.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the logs table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create logs schema: %w", err)
	}
	return nil
}

// LogQuery selects one contract's logs inside [From, To).
type LogQuery struct {
	Chain   string
	Address string
	From    time.Time
	To      time.Time
	// Topic0 restricts the event signatures when non-empty.
	Topic0 []string
}

// QueryLogs returns matching logs ordered by (block_number, transaction_index, log_index).
func (s *Store) QueryLogs(ctx context.Context, q LogQuery) ([]model.LogRecord, error) {
	sql := `
		SELECT block_number, block_timestamp, block_hash, transaction_hash,
			transaction_index, log_index, address, topics, data
		FROM logs
		WHERE chain = $1 AND lower(address) = $2
			AND block_timestamp >= $3 AND block_timestamp < $4`
	args := []interface{}{q.Chain, strings.ToLower(q.Address), q.From.UTC(), q.To.UTC()}
	if len(q.Topic0) > 0 {
		topics := make([]string, len(q.Topic0))
		for i, topic := range q.Topic0 {
			topics[i] = strings.ToLower(topic)
		}
		sql += ` AND lower(topics[1]) = ANY($5)`
		args = append(args, topics)
	}
	sql += ` ORDER BY block_number, transaction_index, log_index`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []model.LogRecord
	for rows.Next() {
		var (
			blockNumber int64
			blockTime   time.Time
			txIndex     int32
			logIndex    int32
			record      model.LogRecord
		)
		if err := rows.Scan(&blockNumber, &blockTime, &record.BlockHash, &record.TxHash,
			&txIndex, &logIndex, &record.Address, &record.Topics, &record.Data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		record.Chain = q.Chain
		record.BlockNumber = uint64(blockNumber)
		record.Timestamp = uint64(blockTime.Unix())
		record.TxIndex = uint32(txIndex)
		record.LogIndex = uint32(logIndex)
		logs = append(logs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return logs, nil
}

// InsertLogs upserts logs keyed by (chain, transaction_hash, log_index).
func (s *Store) InsertLogs(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO logs (
				chain, address, block_number, block_timestamp, block_hash,
				transaction_hash, transaction_index, log_index, topics, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (chain, transaction_hash, log_index) DO NOTHING
		`,
			log.Chain,
			log.Address,
			int64(log.BlockNumber),
			time.Unix(int64(log.Timestamp), 0).UTC(),
			log.BlockHash,
			log.TxHash,
			int32(log.TxIndex),
			int32(log.LogIndex),
			log.Topics,
			log.Data,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range logs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
