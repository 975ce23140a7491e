package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// InsertTranscript appends one entry to the conversation log.
func (s *Store) InsertTranscript(ctx context.Context, t store.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var taskID any
	if t.TaskID != nil {
		taskID = *t.TaskID
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO transcripts
		(id, session_id, channel, role, type, content, task_id, task_status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Channel, string(t.Role), string(t.Type),
		t.Content, taskID, nullStr(t.TaskStatus), string(metadata), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// GetTranscript fetches one transcript by id.
func (s *Store) GetTranscript(ctx context.Context, id string) (store.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, session_id, channel, role, type, content,
		task_id, task_status, metadata, created_at
		FROM transcripts WHERE id = ?`, id)
	return scanTranscript(row)
}

// SearchTranscripts performs a direct filtered scan over the transcripts
// table, newest first. Filter values are always bound as parameters; only
// the clause structure varies with the filter shape.
func (s *Store) SearchTranscripts(ctx context.Context, f store.TranscriptFilter) ([]store.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	var where []string
	var args []any

	if f.Since > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if len(f.Roles) > 0 {
		where = append(where, "role IN ("+placeholders(len(f.Roles))+")")
		for _, r := range f.Roles {
			args = append(args, string(r))
		}
	}
	if len(f.Channels) > 0 {
		where = append(where, "channel IN ("+placeholders(len(f.Channels))+")")
		for _, c := range f.Channels {
			args = append(args, c)
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+q+"%")
	}

	query := `SELECT id, session_id, channel, role, type, content,
		task_id, task_status, metadata, created_at
		FROM transcripts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}
	defer rows.Close()

	var results []store.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (store.Transcript, error) {
	var t store.Transcript
	var taskID sql.NullInt64
	var taskStatus, metadata sql.NullString
	err := row.Scan(&t.ID, &t.SessionID, &t.Channel, &t.Role, &t.Type, &t.Content,
		&taskID, &taskStatus, &metadata, &t.CreatedAt)
	if err != nil {
		return store.Transcript{}, err
	}
	if taskID.Valid {
		v := taskID.Int64
		t.TaskID = &v
	}
	t.TaskStatus = taskStatus.String
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		_ = json.Unmarshal([]byte(metadata.String), &t.Metadata)
	}
	return t, nil
}

// placeholders returns "?, ?, ..." of length n.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
