package user

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	centity "github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/storage"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// MinPasswordLength applies to every account.
const MinPasswordLength = 6

var ErrBadCredentials = errors.New("invalid credentials")

// UserService orchestrates registration, login and admin provisioning.
type UserService struct {
	store  storage.Store
	hasher PasswordHasher
	tokens *auth.TokenIssuer
	logger *zap.SugaredLogger
}

func NewUserService(store storage.Store, tokens *auth.TokenIssuer, hasher PasswordHasher, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{store: store, hasher: hasher, tokens: tokens, logger: logger}
}

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Role        entity.Role `json:"role"`
	CompanyName string      `json:"companyName"`
}

// Register creates a citizen or contractor. Contractors get their profile
// in the same transaction. Admin roles cannot self-register.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if in.Role == "" {
		in.Role = entity.RoleCitizen
	}
	if !in.Role.Valid() {
		return nil, apperror.Validation("unknown role %q", in.Role)
	}
	if in.Role == entity.RoleAdmin || in.Role == entity.RoleSuperadmin {
		return nil, apperror.Unauthorized("cannot register as %s", in.Role)
	}
	u, err := s.newUser(in.Name, in.Email, in.Password, in.Role, "")
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		if u.Role != entity.RoleContractor {
			return nil
		}
		company := strings.TrimSpace(in.CompanyName)
		if company == "" {
			company = u.Name
		}
		return tx.Contractors().Create(ctx, &centity.Contractor{
			ID:          utilities.NewID(),
			UserID:      u.ID,
			CompanyName: company,
			CreatedAt:   u.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user registered", "user", u.ID, "role", u.Role)
	return u, nil
}

// LoginResult carries the bearer token for a verified user.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn"`
	User      *entity.User `json:"user"`
}

// Login verifies email and password. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	token, ttl, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresIn: int64(ttl / time.Second), User: u}, nil
}

// Me returns the caller's account.
func (s *UserService) Me(ctx context.Context, actor auth.Actor) (*entity.User, error) {
	return s.store.Users().GetByID(ctx, actor.SubjectID)
}

// ProfileInput carries the editable account fields. Blank fields are left
// unchanged.
type ProfileInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)

// UpdateProfile changes the caller's own name and phone.
func (s *UserService) UpdateProfile(ctx context.Context, actor auth.Actor, in ProfileInput) (*entity.User, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" && phone == "" {
		return nil, apperror.Validation("nothing to update")
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		return nil, apperror.Validation("invalid phone %q", phone)
	}
	u, err := s.store.Users().GetByID(ctx, actor.SubjectID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		u.Name = name
	}
	if phone != "" {
		u.Phone = phone
	}
	if err := s.store.Users().UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Infow("profile updated", "user", u.ID)
	return u, nil
}

// AdminInput describes a city admin created by a superadmin.
type AdminInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	City     string `json:"city"`
}

func (s *UserService) CreateAdmin(ctx context.Context, actor auth.Actor, in AdminInput) (*entity.User, error) {
	if actor.Role != entity.RoleSuperadmin {
		return nil, apperror.Unauthorized("only a superadmin can create admins")
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return nil, apperror.Validation("city is required")
	}
	u, err := s.newUser(in.Name, in.Email, in.Password, entity.RoleAdmin, city)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Infow("admin created", "user", u.ID, "city", city, "by", actor.SubjectID)
	return u, nil
}

// CreateSuperadmin bootstraps the first superadmin. It is only reachable
// from the command line.
func (s *UserService) CreateSuperadmin(ctx context.Context, name, email, password string) (*entity.User, error) {
	u, err := s.newUser(name, email, password, entity.RoleSuperadmin, "")
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) newUser(name, email, password string, role entity.Role, city string) (*entity.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperror.Validation("name is required")
	}
	if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		return nil, apperror.Validation("invalid email %q", email)
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.Validation("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return &entity.User{
		ID:           utilities.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		City:         city,
		CitizenLevel: 1,
	}, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
