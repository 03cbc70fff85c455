package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	userStore  UserStore
	users      map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	GetEstablishment(ctx context.Context, id string) (*domain.Establishment, error)
}

type credential struct {
	password        string
	name            string
	role            string
	establishmentID string
	active          bool
	created         time.Time
}

type pdvClaims struct {
	jwtlib.RegisteredClaims
	Role            string `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN == "" {
		managerPIN = "disabled"
	}
	if hashed, err := hashPassword(managerPIN); err == nil {
		managerPIN = hashed
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: managerPIN,
		userStore:  userStore,
		users:      make(map[string]credential),
	}
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken:     token,
		Username:        username,
		Role:            cred.role,
		EstablishmentID: cred.establishmentID,
		ExpiresAt:       expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &pdvClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("lojapdv"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role, EstablishmentID: claims.EstablishmentID}, nil
}

func (a *AuthManager) sign(username string, cred credential, expiresAt time.Time) (string, error) {
	claims := pdvClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "lojapdv",
		},
		Role:            cred.role,
		EstablishmentID: cred.establishmentID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

// CreateUser registers an account of any role. Managers and cashiers must
// belong to an existing establishment.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserAccount{}, apperr.New(apperr.Validation, "username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, apperr.New(apperr.Validation, "username must not contain spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.UserAccount{}, apperr.New(apperr.Validation, "password must be at least 6 characters")
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier:
	default:
		return domain.UserAccount{}, apperr.New(apperr.Validation, "unknown role %q", req.Role)
	}

	establishmentID := strings.TrimSpace(req.EstablishmentID)
	if role != domain.RoleAdmin && establishmentID == "" {
		return domain.UserAccount{}, apperr.New(apperr.Validation, "%s accounts need an establishment", role)
	}
	if establishmentID != "" && a.userStore != nil {
		if _, err := a.userStore.GetEstablishment(ctx, establishmentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.UserAccount{}, apperr.Wrap(apperr.NotFound, err, fmt.Sprintf("establishment %s", establishmentID))
			}
			return domain.UserAccount{}, apperr.Wrap(apperr.Transport, err, "lookup establishment")
		}
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.UserAccount{}, apperr.New(apperr.Conflict, "username already exists")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		Username:        username,
		Password:        passwordHash,
		Name:            strings.TrimSpace(req.Name),
		Role:            role,
		EstablishmentID: establishmentID,
		Active:          true,
		CreatedAt:       time.Now().UTC(),
	}
	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.UserAccount{}, apperr.Wrap(apperr.Conflict, err, "username already exists")
			}
			return domain.UserAccount{}, apperr.Wrap(apperr.Transport, err, "create user")
		}
	}

	a.mu.Lock()
	a.users[username] = credentialOf(user)
	a.mu.Unlock()

	user.Password = ""
	return user, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserAccount {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.UserAccount, 0, len(a.users))
	for username, user := range a.users {
		result = append(result, domain.UserAccount{
			Username:        username,
			Name:            user.name,
			Role:            user.role,
			EstablishmentID: user.establishmentID,
			Active:          user.active,
			CreatedAt:       user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers refreshes the credential cache from the user store and
// rehashes legacy plain-text passwords in place.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		if !isPasswordHash(user.Password) {
			if hashed, err := hashPassword(user.Password); err == nil {
				user.Password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credentialOf(user)
	}
}

func credentialOf(user domain.UserAccount) credential {
	return credential{
		password:        user.Password,
		name:            user.Name,
		role:            user.Role,
		establishmentID: user.EstablishmentID,
		active:          user.Active,
		created:         user.CreatedAt,
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
