package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/comment"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// ListPosts はフィルタ条件に一致する記事をページ単位で返す。
	ListPosts(ctx context.Context, filter model.PostFilter, page int) (*post.PostPage, error)
	// GetPost は記事詳細を取得する。存在しない場合はnilを返す。
	GetPost(ctx context.Context, postID string) (*post.PostDetail, error)
	// CreatePost は記事を作成する。
	CreatePost(ctx context.Context, userID string, input post.PostInput) (*model.Post, error)
	// UpdatePost は記事を更新する。作成者のみが編集できる。
	UpdatePost(ctx context.Context, userID, postID string, input post.PostInput) (*model.Post, error)
	// DeletePost は記事を削除する。作成者のみが削除できる。
	DeletePost(ctx context.Context, userID, postID string) error
	// ListTagNames は全タグ名を返す。
	ListTagNames(ctx context.Context) ([]string, error)
}

// CommentTreeReader は記事詳細に含めるコメントツリーの取得インターフェース。
// comment.Serviceの部分集合として定義する。
type CommentTreeReader interface {
	ThreadForPost(ctx context.Context, postID string) ([]*comment.Thread, error)
}

// PostMetricsRecorder は記事作成メトリクスの記録インターフェース。
type PostMetricsRecorder interface {
	RecordPostCreated()
}

// PostHandler は記事管理のHTTPハンドラー。
type PostHandler struct {
	service  PostServiceInterface
	comments CommentTreeReader
	metrics  PostMetricsRecorder
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, comments CommentTreeReader, metrics PostMetricsRecorder) *PostHandler {
	return &PostHandler{
		service:  service,
		comments: comments,
		metrics:  metrics,
	}
}

// postForm は記事の作成・編集フォームの入力値。
type postForm struct {
	Title    string
	Summary  string
	Content  string
	TagNames []string
}

// Validate は記事フォームのバリデーションを行う。
func (f postForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&f.Summary, validation.Required, validation.Length(1, 500)),
		validation.Field(&f.Content, validation.Required),
		validation.Field(&f.TagNames, validation.Each(validation.Length(1, 50))),
	)
}

// postSummaryResponse は一覧内の記事1件のAPIレスポンス。
type postSummaryResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	AuthorUsername string    `json:"author_username"`
	CreatedAt      time.Time `json:"created_at"`
}

// postListResponse は記事一覧のAPIレスポンス。
type postListResponse struct {
	Posts      []postSummaryResponse `json:"posts"`
	Page       int                   `json:"page"`
	TotalPages int                   `json:"total_pages"`
	TotalCount int                   `json:"total_count"`
}

// commentResponse はコメントツリーの1ノードのAPIレスポンス。
type commentResponse struct {
	ID             string            `json:"id"`
	AuthorUsername string            `json:"author_username"`
	Content        string            `json:"content"`
	CreatedAt      time.Time         `json:"created_at"`
	Replies        []commentResponse `json:"replies"`
}

// postDetailResponse は記事詳細のAPIレスポンス。
type postDetailResponse struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
	ContentHTML    string            `json:"content_html"`
	AuthorID       string            `json:"author_id"`
	AuthorUsername string            `json:"author_username"`
	TagNames       []string          `json:"tags"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Comments       []commentResponse `json:"comments"`
}

// postFormSeedResponse は作成・編集フォームの初期値のAPIレスポンス。
type postFormSeedResponse struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Content       string   `json:"content"`
	TagNames      []string `json:"tags"`
	AvailableTags []string `json:"available_tags"`
}

// ListPosts は記事一覧を返す。
// GET /?page=N
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	h.listWithFilter(w, r, model.PostFilter{})
}

// SearchPosts はタイトル・概要の部分一致で記事を検索する。
// GET /search/?q=text&page=N
// qが空の場合は全件一致として扱う。
func (h *PostHandler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	h.listWithFilter(w, r, model.PostFilter{Search: r.URL.Query().Get("q")})
}

// ListPostsByTag は指定タグが付いた記事の一覧を返す。
// GET /tag/{tag_name}?page=N
// タグ名が空の場合は通常の一覧にフォールバックする。
func (h *PostHandler) ListPostsByTag(w http.ResponseWriter, r *http.Request) {
	h.listWithFilter(w, r, model.PostFilter{Tag: chi.URLParam(r, "tag_name")})
}

// listWithFilter はフィルタ条件付きの記事一覧を処理する共通実装。
func (h *PostHandler) listWithFilter(w http.ResponseWriter, r *http.Request, filter model.PostFilter) {
	page, err := parsePageParam(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPageError(r.URL.Query().Get("page")))
		return
	}

	result, err := h.service.ListPosts(r.Context(), filter, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	posts := make([]postSummaryResponse, len(result.Posts))
	for i, p := range result.Posts {
		posts[i] = postSummaryResponse{
			ID:             p.ID,
			Title:          p.Title,
			Summary:        p.Summary,
			AuthorUsername: p.AuthorUsername,
			CreatedAt:      p.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postListResponse{
		Posts:      posts,
		Page:       result.Page,
		TotalPages: result.TotalPages,
		TotalCount: result.TotalCount,
	})
}

// GetPost は記事詳細をコメントツリー付きで返す。
// GET /post/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.GetPost(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if detail == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError(postID))
		return
	}

	threads, err := h.comments.ThreadForPost(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postDetailResponse{
		ID:             detail.ID,
		Title:          detail.Title,
		Summary:        detail.Summary,
		ContentHTML:    detail.ContentHTML,
		AuthorID:       detail.AuthorID,
		AuthorUsername: detail.AuthorUsername,
		TagNames:       detail.TagNames,
		CreatedAt:      detail.CreatedAt,
		UpdatedAt:      detail.UpdatedAt,
		Comments:       toCommentResponses(threads),
	})
}

// NewPostForm は記事作成フォームの初期値を返す。
// GET /post/new
func (h *PostHandler) NewPostForm(w http.ResponseWriter, r *http.Request) {
	available, err := h.service.ListTagNames(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postFormSeedResponse{
		TagNames:      []string{},
		AvailableTags: available,
	})
}

// EditPostForm は記事編集フォームの初期値（現在の値）を返す。
// GET /post/{id}/edit
func (h *PostHandler) EditPostForm(w http.ResponseWriter, r *http.Request) {
	postID, ok := postIDParam(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.GetPost(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if detail == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError(postID))
		return
	}

	available, err := h.service.ListTagNames(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postFormSeedResponse{
		Title:         detail.Title,
		Summary:       detail.Summary,
		Content:       detail.Content,
		TagNames:      detail.TagNames,
		AvailableTags: available,
	})
}

// CreatePost は記事を作成し、作成された記事の詳細へリダイレクトする。
// POST /post/new
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	form, ok := parsePostForm(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreatePost(r.Context(), userID, post.PostInput{
		Title:    form.Title,
		Summary:  form.Summary,
		Content:  form.Content,
		TagNames: form.TagNames,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordPostCreated()

	http.Redirect(w, r, "/post/"+created.ID, http.StatusSeeOther)
}

// UpdatePost は記事を更新し、記事詳細へリダイレクトする。
// POST /post/{id}/edit
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	postID, ok := postIDParam(w, r, "id")
	if !ok {
		return
	}

	form, ok := parsePostForm(w, r)
	if !ok {
		return
	}

	updated, err := h.service.UpdatePost(r.Context(), userID, postID, post.PostInput{
		Title:    form.Title,
		Summary:  form.Summary,
		Content:  form.Content,
		TagNames: form.TagNames,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/post/"+updated.ID, http.StatusSeeOther)
}

// DeletePost は記事を削除し、一覧へリダイレクトする。
// POST /post/{id}/delete
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	postID, ok := postIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePost(r.Context(), userID, postID); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// parsePostForm はフォームを解析・バリデーションする。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func parsePostForm(w http.ResponseWriter, r *http.Request) (postForm, bool) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式でリクエストしてください。",
		})
		return postForm{}, false
	}

	form := postForm{
		Title:    r.PostFormValue("title"),
		Summary:  r.PostFormValue("summary"),
		Content:  r.PostFormValue("content"),
		TagNames: r.PostForm["tags"],
	}

	if err := form.Validate(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(validationFields(err)))
		return postForm{}, false
	}

	return form, true
}

// parsePageParam はpageクエリパラメータを解析する。
// 未指定の場合は1を返す。数値でない・1未満の場合はエラーを返す。
func parsePageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}

	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errors.New("invalid page parameter")
	}
	return page, nil
}

// toCommentResponses はコメントツリーをレスポンス形式に変換する。
func toCommentResponses(threads []*comment.Thread) []commentResponse {
	responses := make([]commentResponse, len(threads))
	for i, thread := range threads {
		responses[i] = commentResponse{
			ID:             thread.ID,
			AuthorUsername: thread.AuthorUsername,
			Content:        thread.Content,
			CreatedAt:      thread.CreatedAt,
			Replies:        toCommentResponses(thread.Replies),
		}
	}
	return responses
}

// requireUserID はコンテキストから認証ユーザーIDを取得する。
// 未認証の場合はログインページへリダイレクトしfalseを返す。
// RequireUserMiddlewareの後段での二重チェックとして機能する。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login/", http.StatusSeeOther)
		return "", false
	}
	return userID, true
}

// postIDParam は記事IDのパスパラメータを取得する。
// UUIDとして解釈できないIDはDBに存在し得ないため、参照前に404として扱う。
func postIDParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	id := chi.URLParam(r, key)
	if _, err := uuid.Parse(id); err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError(id))
		return "", false
	}
	return id, true
}

// commentIDParam はコメントIDのパスパラメータを取得する。
// UUIDとして解釈できないIDは参照前に404として扱う。
func commentIDParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	id := chi.URLParam(r, key)
	if _, err := uuid.Parse(id); err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCommentNotFoundError(id))
		return "", false
	}
	return id, true
}

// validationFields はozzo-validationのエラーをフィールド別メッセージに変換する。
func validationFields(err error) map[string]string {
	fields := map[string]string{}

	var vErrs validation.Errors
	if errors.As(err, &vErrs) {
		for field, fieldErr := range vErrs {
			fields[field] = fieldErr.Error()
		}
		return fields
	}

	fields["form"] = err.Error()
	return fields
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細をログに記録し、内部サーバーエラーとして扱う。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePostNotFound, model.ErrCodeCommentNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeValidationFailed, model.ErrCodeUsernameTaken, model.ErrCodeInvalidCredentials:
		return http.StatusUnprocessableEntity
	case model.ErrCodeInvalidPage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
