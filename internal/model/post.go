// Package model はドメインモデルを定義する。
package model

import "time"

// Tag は記事に付与されるラベルを表す。
// 名前自体が主キーであり、同名のタグは1つしか存在しない。
// 記事が未知のタグ名を参照した時点で暗黙的に作成される。
type Tag struct {
	Name string
}

// Post はブログ記事を表す。
// ContentはMarkdownの原文として保存され、表示時にサニタイズ済みHTMLへ変換される。
// AuthorIDは作成時に認証ユーザーから決定され、以後変更されない。
type Post struct {
	ID        string
	Title     string
	Summary   string
	Content   string // Markdown原文
	AuthorID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostFilter は記事一覧の絞り込み条件を表す。
// ハンドラーがリクエストごとに構築し、サービス・リポジトリへ明示的に渡す。
// SearchとTagは排他で、両方が設定されることはない。
type PostFilter struct {
	// Search はタイトルまたは概要に対する部分一致検索文字列。
	// 空文字列は全件一致として扱う。
	Search string
	// Tag は絞り込むタグ名。空の場合はタグによる絞り込みを行わない。
	Tag string
}
