// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

const sessionCookieName = "session_id"

// usernamePattern はユーザー名に使用できる文字を定義する。
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]+$`)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規ユーザーを作成する。
	Register(ctx context.Context, username, password string) (*model.User, error)
	// Login は認証情報を検証しセッションを作成する。
	Login(ctx context.Context, username, password string) (*model.Session, error)
	// Logout はセッションを削除する。
	Logout(ctx context.Context, sessionID string) error
	// ChangePassword はパスワードを変更し、他のセッションを無効化する。
	ChangePassword(ctx context.Context, userID, sessionID, currentPassword, newPassword string) error
	// GetCurrentUser はセッションIDから現在のユーザーを取得する。
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthMetricsRecorder はユーザー登録メトリクスの記録インターフェース。
type AuthMetricsRecorder interface {
	RecordUserRegistered()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はセッション認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics AuthMetricsRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, metrics AuthMetricsRecorder) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: metrics,
	}
}

// registerForm はユーザー登録フォームの入力値。
type registerForm struct {
	Username        string
	Password        string
	PasswordConfirm string
}

// Validate は登録フォームのバリデーションを行う。
func (f registerForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username,
			validation.Required,
			validation.Length(1, 150),
			validation.Match(usernamePattern),
		),
		validation.Field(&f.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&f.PasswordConfirm,
			validation.Required,
			validation.In(f.Password).Error("パスワードが一致しません"),
		),
	)
}

// passwordChangeForm はパスワード変更フォームの入力値。
type passwordChangeForm struct {
	CurrentPassword    string
	NewPassword        string
	NewPasswordConfirm string
}

// Validate はパスワード変更フォームのバリデーションを行う。
func (f passwordChangeForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.CurrentPassword, validation.Required),
		validation.Field(&f.NewPassword, validation.Required, validation.Length(8, 128)),
		validation.Field(&f.NewPasswordConfirm,
			validation.Required,
			validation.In(f.NewPassword).Error("パスワードが一致しません"),
		),
	)
}

// Register は新規ユーザーを登録し、ログインページへリダイレクトする。
// POST /register/
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式でリクエストしてください。",
		})
		return
	}

	form := registerForm{
		Username:        r.PostFormValue("username"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	if err := form.Validate(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(validationFields(err)))
		return
	}

	if _, err := h.service.Register(r.Context(), form.Username, form.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordUserRegistered()

	http.Redirect(w, r, "/login/", http.StatusSeeOther)
}

// LoginForm はログインフォームの初期表示用エンドポイント。
// CSRFトークンCookieの発行を兼ねる。
// GET /login/
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"login_url": "/login/",
	})
}

// Login は認証情報を検証し、セッションCookieを設定して一覧へリダイレクトする。
// POST /login/
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式でリクエストしてください。",
		})
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewInvalidCredentialsError())
		return
	}

	session, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄し、一覧へリダイレクトする。
// POST /logout/
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			h.clearSessionCookie(w)
			handleServiceError(w, logoutErr)
			return
		}
	}

	h.clearSessionCookie(w)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// PasswordChangeForm はパスワード変更フォームの初期表示用エンドポイント。
// GET /password/
func (h *AuthHandler) PasswordChangeForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"change_url": "/password/",
	})
}

// ChangePassword はパスワードを変更し、完了ページへリダイレクトする。
// 現在のセッションは維持し、同一ユーザーの他のセッションは無効化する。
// POST /password/
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, "/login/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式でリクエストしてください。",
		})
		return
	}

	form := passwordChangeForm{
		CurrentPassword:    r.PostFormValue("current_password"),
		NewPassword:        r.PostFormValue("new_password"),
		NewPasswordConfirm: r.PostFormValue("new_password_confirm"),
	}
	if err := form.Validate(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewValidationError(validationFields(err)))
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, cookie.Value, form.CurrentPassword, form.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/password_change_done/", http.StatusSeeOther)
}

// PasswordChangeDone はパスワード変更完了の確認レスポンスを返す。
// GET /password_change_done/
func (h *AuthHandler) PasswordChangeDone(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "パスワードを変更しました。",
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil || user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
