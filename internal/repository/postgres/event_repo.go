package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// EventRepo: журнал событий закоммиченных транзакций (ledger_events).
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// WriteBatch сохраняет события пачки квитанций одним INSERT.
// Повторная запись той же квитанции игнорируется по (tx_id, seq).
func (r *EventRepo) WriteBatch(ctx context.Context, receipts []domain.Receipt) error {
	// Количество колонок в таблице ledger_events
	const numFields = 8

	var (
		sb   strings.Builder
		vals = make([]interface{}, 0, len(receipts)*numFields)
		n    int
	)

	// Динамически строим запрос для пакетной вставки
	for _, rc := range receipts {
		for seq, ev := range rc.Events {
			p := n * numFields
			if n > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

			payload, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("postgres: marshal event %s: %w", ev.Name, err)
			}
			vals = append(vals,
				uuid.NewString(), rc.TxID, seq, rc.Operation, rc.Caller.String(),
				ev.Name, payload, rc.Timestamp,
			)
			n++
		}
	}
	if n == 0 {
		return nil
	}

	query := "INSERT INTO ledger_events (id, tx_id, seq, operation, caller, name, payload, created_at) VALUES " +
		sb.String() + " ON CONFLICT (tx_id, seq) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write events batch: %w", err)
	}
	return nil
}

// ListByTx возвращает события одной транзакции в порядке эмиссии.
func (r *EventRepo) ListByTx(ctx context.Context, txID string) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM ledger_events WHERE tx_id = $1 ORDER BY seq`, txID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: decode event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return events, nil
}

// Ping проверяет доступность базы при старте
func (r *EventRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
