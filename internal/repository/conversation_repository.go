package repository

import (
	"context"

	"finsight/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// ConversationRepository stores question/answer turns per session.
// Recent turns bound the advisor's history window and feed the
// asynchronous profile extraction step.
type ConversationRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewConversationRepository(pool PgxPool, tracer trace.Tracer) *ConversationRepository {
	return &ConversationRepository{pool: pool, tracer: tracer}
}

func (r *ConversationRepository) RunMigrations(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id          BIGSERIAL PRIMARY KEY,
			session_key TEXT NOT NULL,
			question    TEXT NOT NULL,
			answer      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_conversation_turns_session
			ON conversation_turns (session_key, created_at DESC)`)
	return err
}

func (r *ConversationRepository) InsertTurn(ctx context.Context, turn domain.ConversationTurn) error {
	_, span := r.tracer.Start(ctx, "conversation-repo.insert-turn")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversation_turns (session_key, question, answer, created_at)
		 VALUES ($1, $2, $3, $4)`,
		turn.SessionKey, turn.Question, turn.Answer, turn.CreatedAt,
	)
	return err
}

// ListRecent returns the newest turns for a session, newest first.
func (r *ConversationRepository) ListRecent(ctx context.Context, sessionKey string, limit int) ([]domain.ConversationTurn, error) {
	_, span := r.tracer.Start(ctx, "conversation-repo.list-recent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT session_key, question, answer, created_at
		 FROM conversation_turns
		 WHERE session_key = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		if err := rows.Scan(&t.SessionKey, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteSession removes a session's turns, used when a user is deleted.
func (r *ConversationRepository) DeleteSession(ctx context.Context, sessionKey string) (int64, error) {
	_, span := r.tracer.Start(ctx, "conversation-repo.delete-session")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE session_key = $1`, sessionKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
