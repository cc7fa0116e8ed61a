package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pulse/internal/trace"
)

// ChainSummary describes one stored chain.
type ChainSummary struct {
	Token  string `json:"token"`
	Run    string `json:"run"`
	Ended  bool   `json:"ended"`
	Passes int    `json:"passes"`
	Events int    `json:"events"`
}

// ErrAmbiguousChain is returned by ReadTrace when no run is given and the
// token is stored under more than one run.
var ErrAmbiguousChain = errors.New("chain is stored under several runs")

// ReadTrace returns the events of one chain ordered by seq. An empty run
// matches the token in any run, as long as only one run has it. An unknown
// token yields an empty slice.
func (s *Store) ReadTrace(ctx context.Context, run, token string) ([]trace.Event, error) {
	if run == "" {
		runs, err := s.runsOf(ctx, token)
		if err != nil {
			return nil, err
		}
		switch len(runs) {
		case 0:
			return nil, nil
		case 1:
			run = runs[0]
		default:
			return nil, fmt.Errorf("read trace %s (runs %v): %w", token, runs, ErrAmbiguousChain)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_token, seq, kind, event, step_index, count, args, error
		FROM trace_events
		WHERE run = ? AND chain_token = ?
		ORDER BY seq ASC, id ASC
	`, run, token)
	if err != nil {
		return nil, fmt.Errorf("query trace %s: %w", token, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// runsOf returns the runs a token is stored under, sorted.
func (s *Store) runsOf(ctx context.Context, token string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run FROM chains WHERE token = ? ORDER BY run ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query runs of %s: %w", token, err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the events of every chain of a run ordered by seq.
func (s *Store) ReadRun(ctx context.Context, run string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_token, seq, kind, event, step_index, count, args, error
		FROM trace_events
		WHERE run = ?
		ORDER BY seq ASC, id ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", run, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListChains returns the chains of a run, or of every run when run is
// empty, ordered by token then run.
func (s *Store) ListChains(ctx context.Context, run string) ([]ChainSummary, error) {
	query := `
		SELECT c.token, c.run, c.ended, c.passes, COUNT(e.id)
		FROM chains c
		LEFT JOIN trace_events e ON e.run = c.run AND e.chain_token = c.token
	`
	var args []any
	if run != "" {
		query += ` WHERE c.run = ?`
		args = append(args, run)
	}
	query += ` GROUP BY c.run, c.token ORDER BY c.token ASC, c.run ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	var out []ChainSummary
	for rows.Next() {
		var (
			c     ChainSummary
			ended int
		)
		if err := rows.Scan(&c.Token, &c.Run, &ended, &c.Passes, &c.Events); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		c.Ended = ended != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}
	return out, nil
}

func scanEvents(rows *sql.Rows) ([]trace.Event, error) {
	var out []trace.Event
	for rows.Next() {
		var (
			ev   trace.Event
			kind string
			args string
		)
		if err := rows.Scan(&ev.Chain, &ev.Seq, &kind, &ev.Event, &ev.Index, &ev.Count, &args, &ev.Error); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = trace.Kind(kind)
		decoded, err := unmarshalArgs(args)
		if err != nil {
			return nil, fmt.Errorf("event %d of chain %s: %w", ev.Seq, ev.Chain, err)
		}
		ev.Args = decoded
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
