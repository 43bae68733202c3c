package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresCommentRepoはCommentRepositoryインターフェースを満たすことを検証
func TestPostgresCommentRepo_ImplementsInterface(t *testing.T) {
	var _ CommentRepository = (*PostgresCommentRepo)(nil)
}

// トップレベルコメントのモデル構築を検証
func TestPostgresCommentRepo_TopLevelComment(t *testing.T) {
	postID := "post-id-1"
	comment := &model.Comment{
		ID:        "comment-id-1",
		PostID:    &postID,
		AuthorID:  "user-id-1",
		Content:   "良い記事でした",
		CreatedAt: time.Now(),
	}

	if comment.IsReply() {
		t.Error("top-level comment should not be a reply")
	}
	if comment.PostID == nil || *comment.PostID != postID {
		t.Errorf("comment.PostID = %v, want %q", comment.PostID, postID)
	}
}

// 返信コメントのモデル構築を検証
func TestPostgresCommentRepo_ReplyComment(t *testing.T) {
	parentID := "comment-id-1"
	reply := &model.Comment{
		ID:        "comment-id-2",
		ParentID:  &parentID,
		AuthorID:  "user-id-2",
		Content:   "同感です",
		CreatedAt: time.Now(),
	}

	if !reply.IsReply() {
		t.Error("reply comment should be a reply")
	}
	if reply.PostID != nil {
		t.Error("reply comment should not reference a post directly")
	}
}
