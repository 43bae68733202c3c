// Package comment はコメントと返信のドメインロジックを提供する。
// コメントは記事に直接付くもの（post_idを持つ）と、別のコメントへの
// 返信（parent_idを持つ）の2種類があり、返信は任意の深さで連鎖できる。
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// Thread はコメントとその返信をツリー構造で表す。
type Thread struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	Content        string
	CreatedAt      time.Time
	Replies        []*Thread
}

// PostFinder は対象記事の存在確認に必要なインターフェース。
// repository.PostRepositoryの部分集合として定義する。
type PostFinder interface {
	FindByID(ctx context.Context, id string) (*repository.PostWithAuthor, error)
}

// Service はコメント管理のサービス層。
type Service struct {
	commentRepo repository.CommentRepository
	postFinder  PostFinder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(commentRepo repository.CommentRepository, postFinder PostFinder) *Service {
	return &Service{
		commentRepo: commentRepo,
		postFinder:  postFinder,
	}
}

// CreateOnPost は記事に直接付くコメントを作成する。
// 対象記事が存在しない場合はPostNotFoundを返す。
func (s *Service) CreateOnPost(ctx context.Context, userID, postID, content string) (*model.Comment, error) {
	post, err := s.postFinder.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    &postID,
		AuthorID:  userID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	slog.Info("comment created",
		slog.String("comment_id", comment.ID),
		slog.String("post_id", postID),
		slog.String("author_id", userID),
	)

	return comment, nil
}

// Reply は既存コメントへの返信を作成する。
// 返信は親コメントのみを参照し、記事への直接参照は持たない。
// 親コメントが存在しない場合はCommentNotFoundを返す。
func (s *Service) Reply(ctx context.Context, userID, parentID, content string) (*model.Comment, error) {
	parent, err := s.commentRepo.FindByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if parent == nil {
		return nil, model.NewCommentNotFoundError(parentID)
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		ParentID:  &parentID,
		AuthorID:  userID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("返信の作成に失敗しました: %w", err)
	}

	slog.Info("reply created",
		slog.String("comment_id", comment.ID),
		slog.String("parent_id", parentID),
		slog.String("author_id", userID),
	)

	return comment, nil
}

// Delete はコメントを削除する。投稿者のみが削除できる。
// 返信はストアのCASCADE削除で連鎖して除去される。
func (s *Service) Delete(ctx context.Context, userID, commentID string) error {
	comment, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(commentID)
	}
	if comment.AuthorID != userID {
		return model.NewForbiddenError()
	}

	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	slog.Info("comment deleted",
		slog.String("comment_id", commentID),
		slog.String("author_id", userID),
	)

	return nil
}

// ThreadForPost は記事のコメントを返信ごとツリー構造で返す。
// 各階層は作成日時の降順（新しいものが先）で並ぶ。
func (s *Service) ThreadForPost(ctx context.Context, postID string) ([]*Thread, error) {
	rows, err := s.commentRepo.ListThreadByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return buildThreads(rows), nil
}

// buildThreads はフラットなコメント列をツリーに組み立てる。
// 入力は作成日時の降順で並んでいる前提で、各ノードのReplies内も
// その順序を保つ。
func buildThreads(rows []repository.CommentWithAuthor) []*Thread {
	nodes := make(map[string]*Thread, len(rows))
	for _, row := range rows {
		nodes[row.ID] = &Thread{
			ID:             row.ID,
			AuthorID:       row.AuthorID,
			AuthorUsername: row.AuthorUsername,
			Content:        row.Content,
			CreatedAt:      row.CreatedAt,
		}
	}

	roots := make([]*Thread, 0, len(rows))
	for _, row := range rows {
		node := nodes[row.ID]
		if row.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*row.ParentID]
		if !ok {
			// 親が取得結果に含まれない場合は孤立ノードとして無視する
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	return roots
}
