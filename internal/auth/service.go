package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	minPasswordLength = 6
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes  = 72
	maxFullNameLength = 100
)

// TextSanitizer はユーザー入力からHTMLを除去する。
type TextSanitizer interface {
	Sanitize(s string) string
}

// LoginRecorder はログイン試行の結果を記録する。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// LoginResult はログイン成功時に返すトークンとユーザー。
type LoginResult struct {
	Token *IssuedToken
	User  *model.User
}

// Service はサインアップ・ログイン・現在ユーザー取得のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	hasher    PasswordHasher
	tokens    *TokenManager
	sanitizer TextSanitizer
	recorder  LoginRecorder

	// 存在しないメールアドレスでも照合処理を行い、応答時間から登録有無を推測させない
	dummyHash string
}

// NewService はServiceを生成する。sanitizerとrecorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens *TokenManager,
	sanitizer TextSanitizer,
	recorder LoginRecorder,
) *Service {
	dummy, err := hasher.Hash("taskman-dummy-password")
	if err != nil {
		slog.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
	}
	return &Service{
		userRepo:  userRepo,
		hasher:    hasher,
		tokens:    tokens,
		sanitizer: sanitizer,
		recorder:  recorder,
		dummyHash: dummy,
	}
}

// Signup は新規ユーザーを登録する。
// メールアドレスは小文字に正規化して保存する。
func (s *Service) Signup(ctx context.Context, fullName, email, password string) (*model.User, error) {
	if s.sanitizer != nil {
		fullName = s.sanitizer.Sanitize(fullName)
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, model.NewValidationError("Full name is required")
	}
	if utf8.RuneCountInString(fullName) > maxFullNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("Full name must be at most %d characters", maxFullNameLength))
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, model.NewValidationError("A valid email is required")
	}

	if len(password) < minPasswordLength || len(password) > maxPasswordBytes {
		return nil, model.NewValidationError(
			fmt.Sprintf("Password must be between %d and %d characters", minPasswordLength, maxPasswordBytes),
		)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		FullName:     fullName,
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、IDトークンを発行する。
// メールアドレス未登録とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		_ = s.hasher.Compare(s.dummyHash, password)
		s.record(false)
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		_ = s.hasher.Compare(s.dummyHash, password)
		s.record(false)
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			s.record(false)
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, err
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.record(true)
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{Token: token, User: user}, nil
}

// CurrentUser はリクエストの利用者に対応するユーザーを返す。
// トークン発行後にユーザーが削除されていた場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, identity model.RequestIdentity) (*model.User, error) {
	if identity.UserID == "" {
		return nil, fmt.Errorf("request identity has no user ID")
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) record(success bool) {
	if s.recorder != nil {
		s.recorder.RecordLogin(success)
	}
}

// normalizeEmail はメールアドレスを検証し、前後の空白除去と小文字化を行う。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	// "Name <a@b>" 形式は受け付けない
	if addr.Address != email {
		return "", fmt.Errorf("unexpected address form")
	}
	return email, nil
}
