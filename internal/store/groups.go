package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateGroup inserts a group by name.
func (s *Store) CreateGroup(ctx context.Context, name string) (int64, error) {
	res, err := s.execWithRetry(ctx, "INSERT INTO groups (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}
	return res.LastInsertId()
}

// GetGroup fetches one group.
func (s *Store) GetGroup(ctx context.Context, id int64) (*Group, error) {
	var g Group
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM groups WHERE id = ?", id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns all groups ordered by name.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM groups ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
