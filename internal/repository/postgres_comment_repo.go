package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	comment := &model.Comment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, parent_id, author_id, content, created_at
		 FROM comments WHERE id = $1`,
		id,
	).Scan(&comment.ID, &comment.PostID, &comment.ParentID, &comment.AuthorID,
		&comment.Content, &comment.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}

	return comment, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, parent_id, author_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, comment.PostID, comment.ParentID, comment.AuthorID,
		comment.Content, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// Delete は指定IDのコメントを削除する。返信はCASCADE削除される。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("comment not found: %s", id)
	}
	return nil
}

// ListThreadByPost は記事のコメントを返信チェーンも含めて全件取得する。
// 返信コメントは記事への直接参照を持たないため、再帰CTEで親コメントから辿る。
// 作成日時の降順で返し、ツリー構築はサービス層で行う。
func (r *PostgresCommentRepo) ListThreadByPost(ctx context.Context, postID string) ([]CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH RECURSIVE thread AS (
			SELECT c.id, c.post_id, c.parent_id, c.author_id, c.content, c.created_at
			FROM comments c
			WHERE c.post_id = $1
			UNION ALL
			SELECT c.id, c.post_id, c.parent_id, c.author_id, c.content, c.created_at
			FROM comments c
			JOIN thread t ON c.parent_id = t.id
		)
		SELECT t.id, t.post_id, t.parent_id, t.author_id, t.content, t.created_at, u.username
		FROM thread t
		JOIN users u ON u.id = t.author_id
		ORDER BY t.created_at DESC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comment thread: %w", err)
	}
	defer rows.Close()

	var comments []CommentWithAuthor
	for rows.Next() {
		var c CommentWithAuthor
		if err := rows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID,
			&c.Content, &c.CreatedAt, &c.AuthorUsername); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
