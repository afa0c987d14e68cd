package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
)

const documentColumns = `id, content_key, source, text, urls, fragments, risk_score, hits,
	domain_info, page_excerpt, quality_flags, assessment, verdict, created_at`

func (s *Store) InsertDocument(ctx context.Context, doc *domain.Document) (bool, error) {
	cols, err := encodeDocument(doc)
	if err != nil {
		return false, err
	}

	type outcome struct {
		inserted bool
		id       string
	}
	res, err := withTx(ctx, s.db, func(tx *sql.Tx) (outcome, error) {
		r, err := tx.ExecContext(ctx, s.q(`INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (content_key) DO NOTHING`), cols...)
		if err != nil {
			return outcome{}, err
		}
		if n, err := r.RowsAffected(); err != nil {
			return outcome{}, err
		} else if n == 1 {
			return outcome{inserted: true, id: doc.ID}, nil
		}
		id, err := queryOne(ctx, tx, s.q(`SELECT id FROM documents WHERE content_key = ?`), []any{doc.ContentKey},
			func(sc Scanner) (string, error) {
				var id string
				return id, sc.Scan(&id)
			})
		return outcome{id: id}, err
	})
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	doc.ID = res.id
	return res.inserted, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := queryOne(ctx, s.db, s.q(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), []any{id}, scanDocument)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) FindDocuments(ctx context.Context, f ports.DocumentFilter) ([]*domain.Document, error) {
	where, args := documentWhere(f)
	query := `SELECT ` + documentColumns + ` FROM documents` + where
	if f.OrderByRisk {
		query += ` ORDER BY risk_score DESC, created_at ASC, id ASC`
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	docs, err := queryMany(ctx, s.db, s.q(query), args, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return docs, nil
}

func (s *Store) CountDocuments(ctx context.Context, f ports.DocumentFilter) (int, error) {
	where, args := documentWhere(f)
	n, err := queryOne(ctx, s.db, s.q(`SELECT COUNT(*) FROM documents`+where), args, func(sc Scanner) (int, error) {
		var n int
		return n, sc.Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, u ports.DocumentUpdate) error {
	var (
		sets []string
		args []any
	)
	if u.Assessment != nil {
		data, err := json.Marshal(u.Assessment)
		if err != nil {
			return fmt.Errorf("encode assessment: %w", err)
		}
		sets, args = append(sets, "assessment = ?"), append(args, string(data))
	}
	switch {
	case u.Verdict != nil:
		data, err := json.Marshal(u.Verdict)
		if err != nil {
			return fmt.Errorf("encode verdict: %w", err)
		}
		sets, args = append(sets, "verdict = ?"), append(args, string(data))
	case u.ClearVerdict:
		sets = append(sets, "verdict = NULL")
	}
	if len(sets) == 0 {
		_, err := s.GetDocument(ctx, id)
		return err
	}

	args = append(args, id)
	r, err := s.db.ExecContext(ctx, s.q(`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func documentWhere(f ports.DocumentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Flagged != nil {
		if *f.Flagged {
			conds = append(conds, "verdict IS NOT NULL")
		} else {
			conds = append(conds, "verdict IS NULL")
		}
	}
	if f.HasAssessment != nil {
		if *f.HasAssessment {
			conds = append(conds, "assessment IS NOT NULL")
		} else {
			conds = append(conds, "assessment IS NULL")
		}
	}
	if f.MinRisk > 0 {
		conds = append(conds, "risk_score >= ?")
		args = append(args, f.MinRisk)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func encodeDocument(d *domain.Document) ([]any, error) {
	enc := func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	}
	list := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		return enc(v)
	}
	nullable := func(isNil bool, v any) (any, error) {
		if isNil {
			return nil, nil
		}
		return enc(v)
	}

	var (
		out  = make([]any, 0, 14)
		errs []error
	)
	add := func(v any, err error) {
		out = append(out, v)
		errs = append(errs, err)
	}
	add(d.ID, nil)
	add(d.ContentKey, nil)
	add(d.Source, nil)
	add(d.Text, nil)
	add(list(d.URLs))
	add(list(d.Fragments))
	add(d.RiskScore, nil)
	add(list(d.Hits))
	add(nullable(d.DomainInfo == nil, d.DomainInfo))
	add(d.PageExcerpt, nil)
	add(list(d.QualityFlags))
	add(nullable(d.Assessment == nil, d.Assessment))
	add(nullable(d.Verdict == nil, d.Verdict))
	add(formatTime(d.CreatedAt), nil)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// scanDocument decodes a row leniently: a malformed score or assessment is
// coerced and flagged instead of failing the whole query.
func scanDocument(sc Scanner) (*domain.Document, error) {
	var (
		d                               domain.Document
		urls, fragments, hits, flags    string
		risk                            sql.NullString
		domainInfo, assessment, verdict sql.NullString
		createdAt                       string
	)
	if err := sc.Scan(&d.ID, &d.ContentKey, &d.Source, &d.Text, &urls, &fragments, &risk, &hits,
		&domainInfo, &d.PageExcerpt, &flags, &assessment, &verdict, &createdAt); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw string
		dst *[]string
	}{{urls, &d.URLs}, {fragments, &d.Fragments}, {hits, &d.Hits}, {flags, &d.QualityFlags}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			*f.dst = nil
		}
		if len(*f.dst) == 0 {
			*f.dst = nil
		}
	}

	if n, ok := parseRiskScore(risk); ok {
		d.RiskScore = n
	} else {
		d.AddFlag(domain.QCInvalidRiskScore)
	}

	if domainInfo.Valid {
		var info domain.DomainInfo
		if err := json.Unmarshal([]byte(domainInfo.String), &info); err == nil {
			d.DomainInfo = &info
		}
	}
	if assessment.Valid {
		var a domain.ClassifierAssessment
		if err := json.Unmarshal([]byte(assessment.String), &a); err != nil {
			d.AddFlag(domain.QCInvalidProbability)
		} else {
			d.Assessment = &a
		}
	}
	if verdict.Valid {
		var v domain.FusionVerdict
		// an unreadable verdict is dropped; the next fuse run recomputes it
		if err := json.Unmarshal([]byte(verdict.String), &v); err == nil {
			d.Verdict = &v
		}
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("document %s: created_at: %w", d.ID, err)
	}
	d.CreatedAt = t

	d.Sanitize()
	return &d, nil
}

// parseRiskScore accepts integers and finite numeric text. The column is
// INTEGER, but SQLite keeps whatever text was written to it.
func parseRiskScore(raw sql.NullString) (int, bool) {
	if !raw.Valid {
		return 0, false
	}
	v := strings.TrimSpace(raw.String)
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
