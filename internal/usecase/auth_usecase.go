package usecase

import (
	"context"
	"crypto/subtle"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// 平文パスワードからハッシュへ。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(subject string, role model.Role, now time.Time) (token string, expiresAt time.Time, err error)
}

// 管理者の資格情報（設定から注入）を照合する約束
type AdminVerifier interface {
	Verify(email string, password string) bool
}

type AuthUsecase struct {
	userRepo repo.UserRepository
	hasher   PasswordHasher
	verifier PasswordVerifier
	issuer   AccessTokenIssuer
	admin    AdminVerifier
	ids      IDGenerator
	clock    Clock
	logger   log.FieldLogger
}

// DI
func NewAuthUsecase(
	userRepo repo.UserRepository,
	hasher PasswordHasher,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	admin AdminVerifier,
	ids IDGenerator,
	clock Clock,
	logger log.FieldLogger,
) *AuthUsecase {
	return &AuthUsecase{
		userRepo: userRepo,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		admin:    admin,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type TokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// 会員登録実行。登録後そのままログイン状態にする
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (TokenOutput, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if name == "" {
		return TokenOutput{}, NewError(KindValidation, "name required")
	}
	// emailの形式チェック
	if !isValidEmailFormat(email) {
		return TokenOutput{}, NewError(KindValidation, "Please enter a valid email")
	}
	// password の長さチェック
	if len(in.Password) < minPasswordLength {
		return TokenOutput{}, NewError(KindValidation, "Please enter a strong password")
	}

	// email重複チェック
	_, err := u.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return TokenOutput{}, NewError(KindConflict, "User already exists")
	}
	if err != repo.ErrNotFound {
		return TokenOutput{}, internalError()
	}

	// パスワードをハッシュ化
	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return TokenOutput{}, internalError()
	}

	now := u.clock.Now()
	user := model.User{
		ID:           u.ids.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed, // ハッシュを保存（平文は保存しない）
		Cart:         model.Cart{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 同時登録はユニーク制約で弾く
	err = u.userRepo.Create(ctx, user)
	if err == repo.ErrDuplicate {
		return TokenOutput{}, NewError(KindConflict, "User already exists")
	}
	if err != nil {
		return TokenOutput{}, internalError()
	}

	u.logger.WithField("user_id", user.ID).Info("user registered")
	return u.issue(user.ID, model.RoleUser)
}

// ログイン処理
func (u *AuthUsecase) Login(ctx context.Context, email string, password string) (TokenOutput, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, email)
	if err == repo.ErrNotFound {
		return TokenOutput{}, NewError(KindUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return TokenOutput{}, internalError()
	}

	//パスワード照合
	if !u.verifier.Verify(password, user.PasswordHash) {
		return TokenOutput{}, NewError(KindUnauthorized, "Invalid credentials")
	}

	return u.issue(user.ID, model.RoleUser)
}

// 管理者ログイン。DBのユーザーではなく設定の資格情報と照合する
func (u *AuthUsecase) AdminLogin(ctx context.Context, email string, password string) (TokenOutput, error) {
	if !u.admin.Verify(strings.TrimSpace(email), password) {
		u.logger.Warn("admin login rejected")
		return TokenOutput{}, NewError(KindUnauthorized, "Invalid credentials")
	}
	return u.issue(strings.TrimSpace(email), model.RoleAdmin)
}

func (u *AuthUsecase) issue(subject string, role model.Role) (TokenOutput, error) {
	token, exp, err := u.issuer.Issue(subject, role, u.clock.Now())
	if err != nil {
		return TokenOutput{}, internalError()
	}
	return TokenOutput{Token: token, ExpiresAt: exp}, nil
}

// メールチェック
func isValidEmailFormat(email string) bool {
	if email == "" {
		return false
	}
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// bcryptハッシュ化
type BcryptPasswordHasher struct {
	cost int
}

// DI
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost}
}

func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// bcryptハッシュと平文を比較
type BcryptPasswordVerifier struct{}

func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// 設定の管理者資格情報
type StaticAdminVerifier struct {
	email    string
	password string
}

func NewStaticAdminVerifier(email, password string) *StaticAdminVerifier {
	return &StaticAdminVerifier{email: email, password: password}
}

func (v *StaticAdminVerifier) Verify(email string, password string) bool {
	if v.email == "" || v.password == "" {
		return false
	}
	okEmail := subtle.ConstantTimeCompare([]byte(email), []byte(v.email)) == 1
	okPassword := subtle.ConstantTimeCompare([]byte(password), []byte(v.password)) == 1
	return okEmail && okPassword
}
