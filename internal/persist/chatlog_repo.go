package persist

import (
	"context"
	"fmt"
	"time"
)

type ChatLine struct {
	Channel string
	From    string
	Text    string
	At      time.Time
}

type ChatLogRepo struct {
	db *DB
}

func NewChatLogRepo(db *DB) *ChatLogRepo {
	return &ChatLogRepo{db: db}
}

// Append writes a batch of lines in a single transaction.
func (r *ChatLogRepo) Append(ctx context.Context, lines []ChatLine) error {
	if len(lines) == 0 {
		return nil
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat log begin: %w", err)
	}
	defer tx.Rollback()

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_log (channel, sender, text, created_at) VALUES (?, ?, ?, ?)`,
			l.Channel, l.From, l.Text, l.At.UTC(),
		); err != nil {
			return fmt.Errorf("chat log insert: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to n lines, oldest first.
func (r *ChatLogRepo) Recent(ctx context.Context, n int) ([]ChatLine, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT channel, sender, text, created_at FROM (
		     SELECT id, channel, sender, text, created_at FROM chat_log ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("chat log query: %w", err)
	}
	defer rows.Close()

	var out []ChatLine
	for rows.Next() {
		var l ChatLine
		if err := rows.Scan(&l.Channel, &l.From, &l.Text, &l.At); err != nil {
			return nil, fmt.Errorf("chat log scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
