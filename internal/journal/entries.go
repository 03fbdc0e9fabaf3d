package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entry is one handled event.
type Entry struct {
	ID       int64         `json:"id"`
	Channel  string        `json:"channel"`
	EventID  string        `json:"eventId"`
	Type     string        `json:"type"`
	Source   string        `json:"source"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Channel    string
	Type       string
	FailedOnly bool
	Since      time.Time
	Limit      int
}

// ChannelStats summarises one channel's journal.
type ChannelStats struct {
	Channel string    `json:"channel"`
	Total   int       `json:"total"`
	Failed  int       `json:"failed"`
	LastAt  time.Time `json:"lastAt"`
}

// DefaultListLimit bounds List when Filter.Limit is unset.
const DefaultListLimit = 100

const entryColumns = "id, channel, event_id, event_type, source, success, error_message, duration_ms, recorded_at"

// Record appends e and returns it with its id assigned.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.Channel) == "" || strings.TrimSpace(e.EventID) == "" {
		return Entry{}, errors.New("journal entry needs channel and event id")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	res, err := j.execWithRetry(ctx,
		`INSERT INTO events (channel, event_id, event_type, source, success, error_message, duration_ms, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Channel,
		e.EventID,
		e.Type,
		e.Source,
		boolToInt(e.Success),
		nullableString(e.Error),
		float64(e.Duration)/float64(time.Millisecond),
		formatTime(e.At),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return e, nil
}

// List returns matching entries, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, f.Type)
	}
	if f.FailedOnly {
		clauses = append(clauses, "success = 0")
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + entryColumns + ` FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns per-channel totals ordered by channel.
func (j *Journal) Stats(ctx context.Context) ([]ChannelStats, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT channel, COUNT(1), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), MAX(recorded_at)
         FROM events GROUP BY channel ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	var out []ChannelStats
	for rows.Next() {
		var (
			stats ChannelStats
			last  sql.NullString
		)
		if err := rows.Scan(&stats.Channel, &stats.Total, &stats.Failed, &last); err != nil {
			return nil, err
		}
		stats.LastAt = parseTime(last.String)
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Prune deletes entries recorded before cutoff and reports how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.execWithRetry(ctx, `DELETE FROM events WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e          Entry
		success    int64
		errMessage sql.NullString
		durationMS float64
		recorded   string
	)
	if err := scanner.Scan(
		&e.ID,
		&e.Channel,
		&e.EventID,
		&e.Type,
		&e.Source,
		&success,
		&errMessage,
		&durationMS,
		&recorded,
	); err != nil {
		return Entry{}, err
	}
	e.Success = success != 0
	e.Error = errMessage.String
	e.Duration = time.Duration(durationMS * float64(time.Millisecond))
	e.At = parseTime(recorded)
	return e, nil
}
