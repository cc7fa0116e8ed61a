package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pulse/internal/trace"
)

// WriteTrace stores recorded events under a run name and returns the number
// of events actually inserted.
//
// Chains are keyed by (run, token), so the same token written under two runs
// is two chains. Each chain's ended flag and pass count are derived from the
// events. Rewriting a trace already stored under the same run is a no-op:
// conflicts on (run, chain_token, seq) are ignored and not counted.
//
// All rows are written in one transaction.
func (s *Store) WriteTrace(ctx context.Context, run string, events []trace.Event) (int, error) {
	if run == "" {
		return 0, fmt.Errorf("write trace: run name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range summarize(events) {
		if err := upsertChain(ctx, tx, run, c); err != nil {
			return 0, err
		}
	}

	inserted := 0
	for _, ev := range events {
		n, err := insertEvent(ctx, tx, run, ev)
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trace: %w", err)
	}
	return inserted, nil
}

type chainRow struct {
	token  string
	ended  bool
	passes int
}

// summarize collects one row per chain in first-seen order.
func summarize(events []trace.Event) []chainRow {
	var rows []chainRow
	index := make(map[string]int)
	for _, ev := range events {
		i, ok := index[ev.Chain]
		if !ok {
			i = len(rows)
			index[ev.Chain] = i
			rows = append(rows, chainRow{token: ev.Chain, passes: 1})
		}
		switch ev.Kind {
		case trace.KindChainEnd:
			rows[i].ended = true
			if ev.Count > rows[i].passes {
				rows[i].passes = ev.Count
			}
		case trace.KindChainStart, trace.KindRinse:
			if ev.Count > rows[i].passes {
				rows[i].passes = ev.Count
			}
		}
	}
	return rows
}

func upsertChain(ctx context.Context, tx *sql.Tx, run string, c chainRow) error {
	ended := 0
	if c.ended {
		ended = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chains (run, token, ended, passes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run, token) DO UPDATE SET
			ended = MAX(chains.ended, excluded.ended),
			passes = MAX(chains.passes, excluded.passes)
	`, run, c.token, ended, c.passes)
	if err != nil {
		return fmt.Errorf("write chain %s: %w", c.token, err)
	}
	return nil
}

// insertEvent returns 1 when the event was written, 0 when it was already
// stored.
func insertEvent(ctx context.Context, tx *sql.Tx, run string, ev trace.Event) (int, error) {
	args, err := marshalArgs(ev.Args)
	if err != nil {
		return 0, fmt.Errorf("event %d of chain %s: %w", ev.Seq, ev.Chain, err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO trace_events (run, chain_token, seq, kind, event, step_index, count, args, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run, chain_token, seq) DO NOTHING
	`, run, ev.Chain, ev.Seq, string(ev.Kind), ev.Event, ev.Index, ev.Count, args, ev.Error)
	if err != nil {
		return 0, fmt.Errorf("write event %d of chain %s: %w", ev.Seq, ev.Chain, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write event %d of chain %s: %w", ev.Seq, ev.Chain, err)
	}
	return int(n), nil
}
