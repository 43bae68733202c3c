package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postColumns は記事取得クエリの共通SELECT句。
const postColumns = `p.id, p.title, p.summary, p.content, p.author_id, p.created_at, p.updated_at, u.username`

// FindByID は指定IDの記事を著者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*PostWithAuthor, error) {
	post := &PostWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts p
		 JOIN users u ON u.id = p.author_id
		 WHERE p.id = $1`,
		id,
	).Scan(&post.ID, &post.Title, &post.Summary, &post.Content, &post.AuthorID,
		&post.CreatedAt, &post.UpdatedAt, &post.AuthorUsername)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}

	return post, nil
}

// List はフィルタ条件に一致する記事を作成日時の降順で返す。
// 検索とタグ絞り込みは排他の独立したフィルタ述語であり、組み合わせない。
func (r *PostgresPostRepo) List(ctx context.Context, filter model.PostFilter, limit, offset int) ([]PostWithAuthor, error) {
	query, args := buildListQuery(filter)
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []PostWithAuthor
	for rows.Next() {
		var post PostWithAuthor
		if err := rows.Scan(&post.ID, &post.Title, &post.Summary, &post.Content, &post.AuthorID,
			&post.CreatedAt, &post.UpdatedAt, &post.AuthorUsername); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// Count はフィルタ条件に一致する記事の総数を返す。
func (r *PostgresPostRepo) Count(ctx context.Context, filter model.PostFilter) (int, error) {
	query, args := buildCountQuery(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

// buildListQuery はフィルタに応じた記事一覧クエリを構築する。
// 空の検索文字列は全行に一致する（LIKE '%%'）。これは意図した挙動として維持する。
func buildListQuery(filter model.PostFilter) (string, []interface{}) {
	switch {
	case filter.Tag != "":
		return `SELECT ` + postColumns + `
			 FROM posts p
			 JOIN users u ON u.id = p.author_id
			 JOIN post_tags pt ON pt.post_id = p.id
			 WHERE pt.tag_name = $1`, []interface{}{filter.Tag}
	case filter.Search != "":
		return `SELECT ` + postColumns + `
			 FROM posts p
			 JOIN users u ON u.id = p.author_id
			 WHERE p.title LIKE '%' || $1 || '%' OR p.summary LIKE '%' || $1 || '%'`,
			[]interface{}{filter.Search}
	default:
		return `SELECT ` + postColumns + `
			 FROM posts p
			 JOIN users u ON u.id = p.author_id`, nil
	}
}

// buildCountQuery はフィルタに応じた記事件数クエリを構築する。
func buildCountQuery(filter model.PostFilter) (string, []interface{}) {
	switch {
	case filter.Tag != "":
		return `SELECT count(*) FROM posts p
			 JOIN post_tags pt ON pt.post_id = p.id
			 WHERE pt.tag_name = $1`, []interface{}{filter.Tag}
	case filter.Search != "":
		return `SELECT count(*) FROM posts p
			 WHERE p.title LIKE '%' || $1 || '%' OR p.summary LIKE '%' || $1 || '%'`,
			[]interface{}{filter.Search}
	default:
		return `SELECT count(*) FROM posts p`, nil
	}
}

// Create は記事とタグ関連付けを同一トランザクションで作成する。
// タグ自体は事前にTagRepository.EnsureAllで作成されていることを前提とする。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post, tagNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, title, summary, content, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		post.ID, post.Title, post.Summary, post.Content, post.AuthorID, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	if err := insertPostTags(ctx, tx, post.ID, tagNames); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は記事本体を更新し、タグ関連付けを指定された集合に置き換える。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post, tagNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE posts SET title = $2, summary = $3, content = $4, updated_at = now()
		 WHERE id = $1`,
		post.ID, post.Title, post.Summary, post.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", post.ID)
	}

	// タグ関連付けを丸ごと置き換える
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM post_tags WHERE post_id = $1`, post.ID,
	); err != nil {
		return fmt.Errorf("failed to clear post tags: %w", err)
	}

	if err := insertPostTags(ctx, tx, post.ID, tagNames); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete は指定IDの記事を削除する。
// 関連するpost_tagsとcommentsはCASCADE削除される。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", id)
	}
	return nil
}

// TagNames は記事に付与されたタグ名を名前順で返す。
func (r *PostgresPostRepo) TagNames(ctx context.Context, postID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag_name FROM post_tags WHERE post_id = $1 ORDER BY tag_name`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list post tags: %w", err)
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
		return nil, fmt.Errorf("failed to iterate post tags: %w", err)
	}

	return names, nil
}

// insertPostTags は記事とタグの関連付けを挿入する。
func insertPostTags(ctx context.Context, tx *sql.Tx, postID string, tagNames []string) error {
	for _, name := range tagNames {
		if name == "" {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_tags (post_id, tag_name) VALUES ($1, $2)
			 ON CONFLICT (post_id, tag_name) DO NOTHING`,
			postID, name,
		)
		if err != nil {
			return fmt.Errorf("failed to insert post tag %q: %w", name, err)
		}
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
