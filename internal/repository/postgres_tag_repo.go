package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresTagRepo はPostgreSQLを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// EnsureAll は指定された名前のタグが存在することを保証する。
// 重複は主キー制約のON CONFLICT DO NOTHINGで吸収するため、
// 同名タグを同時に作成する並行リクエストが競合しても片方が安全に吸収される。
// check-then-createは行わない。
func (r *PostgresTagRepo) EnsureAll(ctx context.Context, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			name,
		)
		if err != nil {
			return fmt.Errorf("failed to ensure tag %q: %w", name, err)
		}
	}
	return nil
}

// ListNames は全タグ名を名前順で返す。
func (r *PostgresTagRepo) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM tags ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}

	return names, nil
}

// compile-time interface check
var _ TagRepository = (*PostgresTagRepo)(nil)
