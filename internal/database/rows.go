package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fade-go/internal/fade"
)

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanEntry(row scanner) (*fade.Entry, error) {
	var (
		e        fade.Entry
		restored sql.NullTime
		synced   sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Content, &e.CreatedAt, &restored, &e.UpdatedAt, &e.DecayLevel, &synced); err != nil {
		return nil, err
	}
	e.RestoredAt = timePtr(restored)
	e.SyncedAt = timePtr(synced)
	return &e, nil
}

// loadChildren fills tags, attachments and questions for the given entries.
// A single entry is loaded with filtered queries; larger sets read each child
// table once.
func (s *SQLiteDatabase) loadChildren(ctx context.Context, q querier, entries []*fade.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := make(map[string]*fade.Entry, len(entries))
	for _, e := range entries {
		e.Attachments = make(map[string]fade.AttachmentRef)
		byID[e.ID] = e
	}

	where, args := "", []any(nil)
	if len(entries) == 1 {
		where, args = " WHERE entry_id = ?", []any{entries[0].ID}
	}

	tagRows, err := q.QueryContext(ctx, `SELECT entry_id, tag FROM entry_tags`+where+` ORDER BY entry_id, tag`, args...)
	if err != nil {
		return fmt.Errorf("loading tags: %w", err)
	}
	for tagRows.Next() {
		var id, tag string
		if err := tagRows.Scan(&id, &tag); err != nil {
			tagRows.Close()
			return fmt.Errorf("scanning tag: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.Tags = append(e.Tags, tag)
		}
	}
	tagRows.Close()
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("iterating tags: %w", err)
	}

	attRows, err := q.QueryContext(ctx, `SELECT entry_id, attachment_id, name, checksum, size FROM entry_attachments`+where, args...)
	if err != nil {
		return fmt.Errorf("loading attachments: %w", err)
	}
	for attRows.Next() {
		var (
			id, attID string
			ref       fade.AttachmentRef
		)
		if err := attRows.Scan(&id, &attID, &ref.Name, &ref.Checksum, &ref.Size); err != nil {
			attRows.Close()
			return fmt.Errorf("scanning attachment: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.Attachments[attID] = ref
		}
	}
	attRows.Close()
	if err := attRows.Err(); err != nil {
		return fmt.Errorf("iterating attachments: %w", err)
	}

	qRows, err := q.QueryContext(ctx, `SELECT entry_id, question, answer FROM entry_questions`+where+` ORDER BY entry_id, position`, args...)
	if err != nil {
		return fmt.Errorf("loading challenge questions: %w", err)
	}
	for qRows.Next() {
		var (
			id string
			cq fade.ChallengeQuestion
		)
		if err := qRows.Scan(&id, &cq.Question, &cq.Answer); err != nil {
			qRows.Close()
			return fmt.Errorf("scanning challenge question: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.ChallengeQuestions = append(e.ChallengeQuestions, cq)
		}
	}
	qRows.Close()
	if err := qRows.Err(); err != nil {
		return fmt.Errorf("iterating challenge questions: %w", err)
	}
	return nil
}

func writeChildren(tx *sql.Tx, e *fade.Entry) error {
	for _, tag := range e.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)`, e.ID, tag); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
	}
	for attID, ref := range e.Attachments {
		if _, err := tx.Exec(`INSERT INTO entry_attachments (entry_id, attachment_id, name, checksum, size) VALUES (?, ?, ?, ?, ?)`,
			e.ID, attID, ref.Name, ref.Checksum, ref.Size); err != nil {
			return fmt.Errorf("inserting attachment: %w", err)
		}
	}
	for i, cq := range e.ChallengeQuestions {
		if _, err := tx.Exec(`INSERT INTO entry_questions (entry_id, position, question, answer) VALUES (?, ?, ?, ?)`,
			e.ID, i, cq.Question, cq.Answer); err != nil {
			return fmt.Errorf("inserting challenge question: %w", err)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
