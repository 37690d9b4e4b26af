package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// NextDocNumber issues the next sequential document number for a prefix and
// date, e.g. "DSP-20260115-0007". It must be called inside the transaction
// that persists the numbered record: the upsert takes a row lock on the
// counter, so two concurrent callers can never receive the same number.
func NextDocNumber(ctx context.Context, tx pgx.Tx, prefix string, date time.Time) (string, error) {
	const query = `
		INSERT INTO doc_sequences (prefix, seq_date, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, seq_date)
		DO UPDATE SET last_value = doc_sequences.last_value + 1
		RETURNING last_value
	`
	var seq int64
	if err := tx.QueryRow(ctx, query, prefix, date.Format("2006-01-02")).Scan(&seq); err != nil {
		return "", fmt.Errorf("shared: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("20060102"), seq), nil
}
