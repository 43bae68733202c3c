// Package post は記事管理のドメインロジックを提供する。
// 一覧・検索・タグ絞り込みのクエリ合成と、作成・編集・削除の
// 所有者チェックをこのパッケージで行う。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// PostsPerPage は記事一覧の1ページあたりの件数。
const PostsPerPage = 5

// Renderer はMarkdown本文の表示用HTML変換に必要なインターフェース。
// markdown.Rendererの部分集合として定義する。
type Renderer interface {
	Render(source string) (string, error)
}

// PostSummary は一覧表示用の記事サマリー。本文は含まない。
type PostSummary struct {
	ID             string
	Title          string
	Summary        string
	AuthorID       string
	AuthorUsername string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PostPage はページネーション済みの記事一覧。
type PostPage struct {
	Posts      []PostSummary
	Page       int // 1始まり
	TotalPages int
	TotalCount int
}

// PostDetail は記事詳細。Markdown原文とサニタイズ済みHTMLの両方を持つ。
type PostDetail struct {
	PostSummary
	Content     string // Markdown原文（編集フォーム用）
	ContentHTML string // サニタイズ済みHTML（表示用）
	TagNames    []string
}

// PostInput は記事の作成・編集フォームの入力値。
type PostInput struct {
	Title    string
	Summary  string
	Content  string
	TagNames []string
}

// Service は記事管理のサービス層。
type Service struct {
	postRepo repository.PostRepository
	tagRepo  repository.TagRepository
	renderer Renderer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	postRepo repository.PostRepository,
	tagRepo repository.TagRepository,
	renderer Renderer,
) *Service {
	return &Service{
		postRepo: postRepo,
		tagRepo:  tagRepo,
		renderer: renderer,
	}
}

// ListPosts はフィルタ条件に一致する記事を作成日時の降順・5件/ページで返す。
// pageは1始まり。範囲外のページは空の一覧を返す。
func (s *Service) ListPosts(ctx context.Context, filter model.PostFilter, page int) (*PostPage, error) {
	if page < 1 {
		page = 1
	}

	count, err := s.postRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事件数の取得に失敗しました: %w", err)
	}

	offset := (page - 1) * PostsPerPage
	rows, err := s.postRepo.List(ctx, filter, PostsPerPage, offset)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}

	posts := make([]PostSummary, len(rows))
	for i, row := range rows {
		posts[i] = toPostSummary(row)
	}

	totalPages := (count + PostsPerPage - 1) / PostsPerPage

	return &PostPage{
		Posts:      posts,
		Page:       page,
		TotalPages: totalPages,
		TotalCount: count,
	}, nil
}

// GetPost は記事詳細をサニタイズ済みHTML・タグ名付きで返す。
// 記事が存在しない場合はnilを返す。
func (s *Service) GetPost(ctx context.Context, postID string) (*PostDetail, error) {
	row, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	contentHTML, err := s.renderer.Render(row.Content)
	if err != nil {
		return nil, fmt.Errorf("本文のHTML変換に失敗しました: %w", err)
	}

	tagNames, err := s.postRepo.TagNames(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("タグの取得に失敗しました: %w", err)
	}

	return &PostDetail{
		PostSummary: toPostSummary(*row),
		Content:     row.Content,
		ContentHTML: contentHTML,
		TagNames:    tagNames,
	}, nil
}

// CreatePost は記事を作成する。
// 作成者は必ず認証ユーザーであり、リクエスト側から指定することはできない。
// 未知のタグ名は先に作成（冪等なupsert-by-name）してから関連付ける。
func (s *Service) CreatePost(ctx context.Context, userID string, input PostInput) (*model.Post, error) {
	if err := s.tagRepo.EnsureAll(ctx, input.TagNames); err != nil {
		return nil, fmt.Errorf("タグの作成に失敗しました: %w", err)
	}

	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Summary:   input.Summary,
		Content:   input.Content,
		AuthorID:  userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.postRepo.Create(ctx, post, input.TagNames); err != nil {
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("author_id", userID),
	)

	return post, nil
}

// UpdatePost は既存記事を更新する。
// 作成者のみが編集できる。タグ集合は送信された集合で置き換える。
// 記事が存在しない場合はPostNotFound、他人の記事の場合はForbiddenを返す。
func (s *Service) UpdatePost(ctx context.Context, userID, postID string, input PostInput) (*model.Post, error) {
	existing, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	if existing.AuthorID != userID {
		return nil, model.NewForbiddenError()
	}

	if err := s.tagRepo.EnsureAll(ctx, input.TagNames); err != nil {
		return nil, fmt.Errorf("タグの作成に失敗しました: %w", err)
	}

	post := &model.Post{
		ID:        postID,
		Title:     input.Title,
		Summary:   input.Summary,
		Content:   input.Content,
		AuthorID:  existing.AuthorID,
		CreatedAt: existing.CreatedAt,
	}

	if err := s.postRepo.Update(ctx, post, input.TagNames); err != nil {
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}

	slog.Info("post updated",
		slog.String("post_id", postID),
		slog.String("author_id", userID),
	)

	return post, nil
}

// DeletePost は記事を削除する。
// 作成者のみが削除できる。関連するコメント（返信チェーン含む）は
// ストアのCASCADE削除で除去される。
func (s *Service) DeletePost(ctx context.Context, userID, postID string) error {
	existing, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewPostNotFoundError(postID)
	}
	if existing.AuthorID != userID {
		return model.NewForbiddenError()
	}

	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}

	slog.Info("post deleted",
		slog.String("post_id", postID),
		slog.String("author_id", userID),
	)

	return nil
}

// ListTagNames は全タグ名を返す。記事フォームの選択肢表示に使用する。
func (s *Service) ListTagNames(ctx context.Context) ([]string, error) {
	names, err := s.tagRepo.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	return names, nil
}

// toPostSummary はリポジトリの読み取りモデルをサマリーに変換する。
func toPostSummary(row repository.PostWithAuthor) PostSummary {
	return PostSummary{
		ID:             row.ID,
		Title:          row.Title,
		Summary:        row.Summary,
		AuthorID:       row.AuthorID,
		AuthorUsername: row.AuthorUsername,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}
