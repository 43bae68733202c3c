// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

// ErrDuplicateUsername はusersテーブルのユーザー名一意制約違反を表す。
// サービス層でバリデーションエラーに変換される。
var ErrDuplicateUsername = errors.New("duplicate username")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// ユーザー名の一意制約違反の場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザー名・氏名・メールアドレスを更新する。
	// ユーザー名の一意制約違反の場合はErrDuplicateUsernameを返す。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserIDExcept は指定ユーザーのセッションのうち、
	// keepID以外をすべて削除する。パスワード変更時の他セッション無効化に使用する。
	DeleteByUserIDExcept(ctx context.Context, userID, keepID string) error
	// DeleteExpired は期限切れからgraceを超過したセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// TagRepository はタグデータの永続化インターフェース。
type TagRepository interface {
	// EnsureAll は指定された名前のタグが存在することを保証する。
	// 既存のタグ名は一意制約（ON CONFLICT DO NOTHING）で吸収され、冪等に動作する。
	EnsureAll(ctx context.Context, names []string) error

	// ListNames は全タグ名を名前順で返す。
	ListNames(ctx context.Context) ([]string, error)
}

// PostWithAuthor は記事と著者のユーザー名を結合した読み取りモデル。
// usersテーブルとJOINして取得される。
type PostWithAuthor struct {
	model.Post
	AuthorUsername string
}

// PostRepository は記事データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの記事を著者名付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*PostWithAuthor, error)

	// List はフィルタ条件に一致する記事を作成日時の降順で返す。
	// filter.Searchはタイトルまたは概要への部分一致、filter.Tagはタグ名の完全一致。
	List(ctx context.Context, filter model.PostFilter, limit, offset int) ([]PostWithAuthor, error)

	// Count はフィルタ条件に一致する記事の総数を返す。
	Count(ctx context.Context, filter model.PostFilter) (int, error)

	// Create は記事とタグ関連付けを同一トランザクションで作成する。
	Create(ctx context.Context, post *model.Post, tagNames []string) error

	// Update は記事本体を更新し、タグ関連付けを指定された集合に置き換える。
	// 同一トランザクションで実行する。
	Update(ctx context.Context, post *model.Post, tagNames []string) error

	// Delete は指定IDの記事を削除する。
	// 関連するpost_tagsとcommentsはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// TagNames は記事に付与されたタグ名を名前順で返す。
	TagNames(ctx context.Context, postID string) ([]string, error)
}

// CommentWithAuthor はコメントと著者のユーザー名を結合した読み取りモデル。
type CommentWithAuthor struct {
	model.Comment
	AuthorUsername string
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// Delete は指定IDのコメントを削除する。返信はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListThreadByPost は記事のコメントを返信チェーンも含めて全件取得する。
	// 再帰CTEで返信を辿り、作成日時の降順で返す。ツリー構築はサービス層で行う。
	ListThreadByPost(ctx context.Context, postID string) ([]CommentWithAuthor, error)
}
