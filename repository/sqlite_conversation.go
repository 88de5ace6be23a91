package repository

import (
	"context"
	"fmt"

	"github.com/akinalp/nexus/database"
)

type sqliteConversationRepo struct {
	db database.TxQuerier
}

func NewSQLiteConversationRepo(db database.TxQuerier) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

func (r *sqliteConversationRepo) PeersOf(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT other.user_id
		FROM conversation_participants AS me
		JOIN conversation_participants AS other
			ON other.conversation_id = me.conversation_id
		WHERE me.user_id = ? AND other.user_id != ?`

	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation peers: %w", err)
	}
	defer rows.Close()

	var peers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan peer row: %w", err)
		}
		peers = append(peers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peer rows: %w", err)
	}
	return peers, nil
}
