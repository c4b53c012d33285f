package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const friendColumns = "id, sender_id, receiver_id, status, is_blocked, blocked_by, created_at, updated_at"

func scanFriend(row interface{ Scan(...any) error }) (Friend, error) {
	var (
		f         Friend
		status    string
		blockedBy sql.NullString
	)

	err := row.Scan(
		&f.Id,
		&f.SenderId,
		&f.ReceiverId,
		&status,
		&f.IsBlocked,
		&blockedBy,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return Friend{}, err
	}

	f.Status = FriendStatus(status)
	f.BlockedBy = blockedBy.String

	return f, nil
}

func (db *PgChatRepository) GetFriendById(ctx context.Context, id string) (Friend, error) {
	friendId, err := parseId(id)
	if err != nil {
		return Friend{}, err
	}

	row := db.conn.QueryRowContext(ctx,
		"SELECT "+friendColumns+" FROM friends WHERE id = $1 LIMIT 1",
		friendId.String(),
	)

	f, err := scanFriend(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Friend{}, fmt.Errorf("friend %q: %w", id, ErrNotFound)
		}
		return Friend{}, fmt.Errorf("get friend %q: %w", id, err)
	}

	return f, nil
}

func (db *PgChatRepository) GetGroupById(ctx context.Context, id string) (Group, error) {
	groupId, err := parseId(id)
	if err != nil {
		return Group{}, err
	}

	query := `
		SELECT
				g.id,
				g.name,
				g.owner_id,
				g.created_at,
				g.updated_at,
				COALESCE(array_agg(m.user_id::text) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE g.id = $1
		GROUP BY g.id;
`

	var g Group
	err = db.conn.QueryRowContext(ctx, query, groupId.String()).Scan(
		&g.Id,
		&g.Name,
		&g.OwnerId,
		&g.CreatedAt,
		&g.UpdatedAt,
		pq.Array(&g.MemberIds),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, fmt.Errorf("group %q: %w", id, ErrNotFound)
		}
		return Group{}, fmt.Errorf("get group %q: %w", id, err)
	}

	return g, nil
}

// ListAcceptedFriendships returns the accepted, unblocked friend relations
// in which userId is either party.
func (db *PgChatRepository) ListAcceptedFriendships(ctx context.Context, userId string) ([]Friend, error) {
	uid, err := parseId(userId)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+friendColumns+" FROM friends "+
			"WHERE is_blocked = false AND status = $1 AND (sender_id = $2 OR receiver_id = $2)",
		string(FriendStatusAccepted),
		uid.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	defer rows.Close()

	friends := make([]Friend, 0)
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		friends = append(friends, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return friends, nil
}
