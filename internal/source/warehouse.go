package source

import (
	"context"
	"time"

	"defiFetch/internal/model"
	"defiFetch/internal/storage/postgres"
)

// LogQuerier is the warehouse query the source needs.
type LogQuerier interface {
	QueryLogs(ctx context.Context, q postgres.LogQuery) ([]model.LogRecord, error)
}

// Warehouse reads logs from the bulk SQL warehouse by block timestamp.
type Warehouse struct {
	store    LogQuerier
	chain    string
	location *time.Location
}

func NewWarehouse(store LogQuerier, chain string, loc *time.Location) *Warehouse {
	return &Warehouse{store: store, chain: chain, location: loc}
}

func (s *Warehouse) DayLogs(ctx context.Context, day time.Time, contract model.ContractConfig) ([]model.LogRecord, error) {
	from, to := DayBounds(day, s.location)
	logs, err := s.store.QueryLogs(ctx, postgres.LogQuery{
		Chain:   s.chain,
		Address: contract.Address,
		From:    from,
		To:      to,
		Topic0:  contract.Topics[0],
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if contract.Matches(log.Topics) {
			out = append(out, log)
		}
	}
	return dedupe(out), nil
}
