package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
)

const intelColumns = `url, submission_state, resolution_state, verdict, attempt_count, submit_count,
	stats, last_error, created_at, updated_at, resolved_at`

func (s *Store) EnsureIntel(ctx context.Context, url string, now time.Time) (bool, error) {
	ts := formatTime(now)
	r, err := s.db.ExecContext(ctx, s.q(`INSERT INTO intel_records (url, created_at, updated_at)
		VALUES (?, ?, ?) ON CONFLICT (url) DO NOTHING`), url, ts, ts)
	if err != nil {
		return false, fmt.Errorf("ensure intel %s: %w", url, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure intel %s: %w", url, err)
	}
	return n == 1, nil
}

func (s *Store) GetIntel(ctx context.Context, url string) (*domain.IntelRecord, error) {
	rec, err := queryOne(ctx, s.db, s.q(`SELECT `+intelColumns+` FROM intel_records WHERE url = ?`), []any{url}, scanIntel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIntelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intel %s: %w", url, err)
	}
	return rec, nil
}

func (s *Store) FindIntel(ctx context.Context, f ports.IntelFilter) ([]*domain.IntelRecord, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.URLs) > 0 {
		conds = append(conds, "url IN ("+placeholders(len(f.URLs))+")")
		for _, u := range f.URLs {
			args = append(args, u)
		}
	}
	if f.Submission != "" {
		conds = append(conds, "submission_state = ?")
		args = append(args, string(f.Submission))
	}
	if f.Resolution != "" {
		conds = append(conds, "resolution_state = ?")
		args = append(args, string(f.Resolution))
	}

	query := `SELECT ` + intelColumns + ` FROM intel_records`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY url ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	recs, err := queryMany(ctx, s.db, s.q(query), args, scanIntel)
	if err != nil {
		return nil, fmt.Errorf("find intel: %w", err)
	}
	return recs, nil
}

// UpdateIntel writes the set fields in one statement. With OnlyPending the
// write is guarded on resolution_state so a replayed resolution changes nothing.
func (s *Store) UpdateIntel(ctx context.Context, url string, u ports.IntelUpdate) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(u.UpdatedAt)}
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if u.Submission != nil {
		set("submission_state", string(*u.Submission))
	}
	if u.Resolution != nil {
		set("resolution_state", string(*u.Resolution))
	}
	if u.Verdict != nil {
		set("verdict", string(*u.Verdict))
	}
	if u.Attempts != nil {
		set("attempt_count", *u.Attempts)
	}
	if u.Submits != nil {
		set("submit_count", *u.Submits)
	}
	if u.Stats != nil {
		data, err := json.Marshal(u.Stats)
		if err != nil {
			return false, fmt.Errorf("encode stats: %w", err)
		}
		set("stats", string(data))
	}
	if u.LastError != nil {
		set("last_error", *u.LastError)
	}
	if u.ResolvedAt != nil {
		set("resolved_at", formatTime(*u.ResolvedAt))
	}

	query := `UPDATE intel_records SET ` + strings.Join(sets, ", ") + ` WHERE url = ?`
	args = append(args, url)
	if u.OnlyPending {
		query += ` AND resolution_state = ?`
		args = append(args, string(domain.ResolutionPending))
	}

	r, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return false, fmt.Errorf("update intel %s: %w", url, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update intel %s: %w", url, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetIntel(ctx, url); err != nil {
		return false, err
	}
	return false, nil
}

func scanIntel(sc Scanner) (*domain.IntelRecord, error) {
	var (
		r                    domain.IntelRecord
		sub, res, verdict    string
		stats                string
		createdAt, updatedAt string
		resolvedAt           sql.NullString
	)
	if err := sc.Scan(&r.URL, &sub, &res, &verdict, &r.Attempts, &r.Submits,
		&stats, &r.LastError, &createdAt, &updatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	r.Submission = domain.SubmissionState(sub)
	r.Resolution = domain.ResolutionState(res)
	r.Verdict = domain.IntelVerdict(verdict)

	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		r.Stats = domain.ScanStats{}
	}

	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("intel %s: created_at: %w", r.URL, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("intel %s: updated_at: %w", r.URL, err)
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("intel %s: resolved_at: %w", r.URL, err)
		}
		r.ResolvedAt = &t
	}
	return &r, nil
}
