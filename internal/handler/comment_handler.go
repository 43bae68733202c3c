package handler

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// CreateOnPost は記事に直接付くコメントを作成する。
	CreateOnPost(ctx context.Context, userID, postID, content string) (*model.Comment, error)
	// Reply は既存コメントへの返信を作成する。
	Reply(ctx context.Context, userID, parentID, content string) (*model.Comment, error)
	// Delete はコメントを削除する。投稿者のみが削除できる。
	Delete(ctx context.Context, userID, commentID string) error
}

// CommentMetricsRecorder はコメント作成メトリクスの記録インターフェース。
type CommentMetricsRecorder interface {
	RecordCommentCreated()
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
	metrics CommentMetricsRecorder
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface, metrics CommentMetricsRecorder) *CommentHandler {
	return &CommentHandler{
		service: service,
		metrics: metrics,
	}
}

// commentForm はコメント投稿フォームの入力値。
type commentForm struct {
	Content string
}

// Validate はコメントフォームのバリデーションを行う。
func (f commentForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Content, validation.Required, validation.Length(1, 2000)),
	)
}

// CreateComment は記事へのコメントを作成し、記事詳細へリダイレクトする。
// POST /post/{post_id}/comment/new
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	postID, ok := postIDParam(w, r, "post_id")
	if !ok {
		return
	}

	form, ok := parseCommentForm(w, r)
	if !ok {
		return
	}

	if _, err := h.service.CreateOnPost(r.Context(), userID, postID, form.Content); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordCommentCreated()

	http.Redirect(w, r, "/post/"+postID, http.StatusSeeOther)
}

// ReplyToComment はコメントへの返信を作成し、記事詳細へリダイレクトする。
// POST /post/{post_id}/comment/{id}/reply
func (h *CommentHandler) ReplyToComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	postID, ok := postIDParam(w, r, "post_id")
	if !ok {
		return
	}
	parentID, ok := commentIDParam(w, r, "id")
	if !ok {
		return
	}

	form, ok := parseCommentForm(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Reply(r.Context(), userID, parentID, form.Content); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordCommentCreated()

	http.Redirect(w, r, "/post/"+postID, http.StatusSeeOther)
}

// DeleteComment はコメントを削除し、記事詳細へリダイレクトする。
// POST /post/{post_id}/comment/{id}/delete
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	postID, ok := postIDParam(w, r, "post_id")
	if !ok {
		return
	}
	commentID, ok := commentIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/post/"+postID, http.StatusSeeOther)
}

// parseCommentForm はコメントフォームを解析・バリデーションする。
// 本文はcontentフィールドで送信する。旧フォームとの互換のため
// commentフィールドも受け付ける。
func parseCommentForm(w http.ResponseWriter, r *http.Request) (commentForm, bool) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式でリクエストしてください。",
		})
		return commentForm{}, false
	}

	content := r.PostFormValue("content")
	if content == "" {
		content = r.PostFormValue("comment")
	}

	form := commentForm{Content: content}
	if err := form.Validate(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(validationFields(err)))
		return commentForm{}, false
	}

	return form, true
}
