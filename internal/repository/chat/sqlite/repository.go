package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scenesync/server/internal/domain"
	"github.com/scenesync/server/internal/repository/chat"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the sqlite database at path and applies pending migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func NewRepo(db *sql.DB, logger *slog.Logger) *repo {
	return &repo{
		db:     db,
		logger: logger,
	}
}

func (r repo) SaveMessage(ctx context.Context, msg *domain.Message) error {
	r.logger.DebugContext(ctx, "called", "message_id", msg.Id, "room_id", msg.RoomId)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, user_id, username, text, kind, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Id, msg.RoomId, msg.User.Id, msg.User.Username, msg.Text, string(msg.Type), msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func scanMessage(row interface{ Scan(...any) error }) (domain.Message, error) {
	var (
		msg       domain.Message
		kind      string
		createdAt int64
	)
	if err := row.Scan(&msg.Id, &msg.RoomId, &msg.User.Id, &msg.User.Username, &msg.Text, &kind, &createdAt); err != nil {
		return domain.Message{}, err
	}
	msg.Type = domain.MessageKind(kind)
	msg.Timestamp = time.UnixMilli(createdAt).UTC()

	return msg, nil
}

func (r repo) GetMessage(ctx context.Context, roomId, messageId string) (domain.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, user_id, username, text, kind, created_at FROM messages WHERE room_id = ? AND id = ? AND deleted = 0`,
		roomId, messageId,
	)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, chat.ErrMessageNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// ListMessages returns up to limit messages of a room, newest first. A non-empty before
// restricts the page to messages older than that message id.
func (r repo) ListMessages(ctx context.Context, roomId, before string, limit int) ([]domain.Message, error) {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "before", before, "limit", limit)

	query := `SELECT id, room_id, user_id, username, text, kind, created_at FROM messages WHERE room_id = ? AND deleted = 0`
	args := []any{roomId}
	if before != "" {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// DeleteMessage hides a message from history; the row is kept.
func (r repo) DeleteMessage(ctx context.Context, roomId, messageId string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomId, "message_id", messageId)

	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE room_id = ? AND id = ? AND deleted = 0`, roomId, messageId)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return chat.ErrMessageNotFound
	}

	return nil
}
