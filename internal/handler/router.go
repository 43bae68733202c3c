package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	MetricsRecorder   middleware.HTTPMetricsRecorder
	MetricsGatherer   prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	AuthMetrics AuthMetricsRecorder

	// 記事
	PostService PostServiceInterface
	PostMetrics PostMetricsRecorder

	// コメント
	CommentService CommentServiceInterface
	CommentReader  CommentTreeReader
	CommentMetrics CommentMetricsRecorder

	// ユーザー
	UserService UserServiceInterface

	// ヘルスチェック
	HealthHandler http.HandlerFunc
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → LoadSession → Logging → RateLimit(General) → CSRF
//
// 閲覧系エンドポイントは未認証でも利用できる。状態変更系はRequireUserで
// 未認証リクエストを/login/へ303リダイレクトし、書き込み専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	r.Use(middleware.NewLoadSessionMiddleware(deps.SessionFinder))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(deps.RateLimiter.GeneralMiddleware())
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.AuthMetrics)
	postHandler := NewPostHandler(deps.PostService, deps.CommentReader, deps.PostMetrics)
	commentHandler := NewCommentHandler(deps.CommentService, deps.CommentMetrics)
	userHandler := NewUserHandler(deps.UserService)

	requireUser := middleware.NewRequireUserMiddleware("/login/")
	mutationLimit := deps.RateLimiter.MutationMiddleware()

	// --- 運用エンドポイント ---
	r.Get("/health", deps.HealthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 閲覧（認証不要） ---
	r.Get("/", postHandler.ListPosts)
	r.Get("/search/", postHandler.SearchPosts)
	r.Get("/tag/{tag_name}", postHandler.ListPostsByTag)
	r.Get("/post/{id}", postHandler.GetPost)

	// --- アカウント ---
	r.With(mutationLimit).Post("/register/", authHandler.Register)
	r.Get("/login/", authHandler.LoginForm)
	r.With(mutationLimit).Post("/login/", authHandler.Login)
	r.Post("/logout/", authHandler.Logout)
	r.Get("/auth/me", authHandler.Me)
	r.Get("/password_change_done/", authHandler.PasswordChangeDone)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		// 記事の作成・編集・削除
		r.Get("/post/new", postHandler.NewPostForm)
		r.With(mutationLimit).Post("/post/new", postHandler.CreatePost)
		r.Get("/post/{id}/edit", postHandler.EditPostForm)
		r.With(mutationLimit).Post("/post/{id}/edit", postHandler.UpdatePost)
		r.With(mutationLimit).Post("/post/{id}/delete", postHandler.DeletePost)

		// コメント
		r.With(mutationLimit).Post("/post/{post_id}/comment/new", commentHandler.CreateComment)
		r.With(mutationLimit).Post("/post/{post_id}/comment/{id}/reply", commentHandler.ReplyToComment)
		r.With(mutationLimit).Post("/post/{post_id}/comment/{id}/delete", commentHandler.DeleteComment)

		// プロフィール・パスワード
		r.Get("/profile/", userHandler.GetProfile)
		r.With(mutationLimit).Post("/profile/", userHandler.UpdateProfile)
		r.Get("/password/", authHandler.PasswordChangeForm)
		r.With(mutationLimit).Post("/password/", authHandler.ChangePassword)
	})

	return r
}
