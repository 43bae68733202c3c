// Package model はドメインモデルを定義する。
package model

import "time"

// Comment は記事へのコメント、またはコメントへの返信を表す。
// トップレベルコメントはPostIDを持ち、返信はParentIDを持つ。
// 少なくとも一方は必ず設定される（DBのCHECK制約で保証）。
type Comment struct {
	ID        string
	PostID    *string // トップレベルコメントの場合のみ設定
	ParentID  *string // 返信の場合のみ設定
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// IsReply は返信コメントかどうかを返す。
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}
