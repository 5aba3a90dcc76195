package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

// SeedUser is one record of a users seed file. Password is plaintext and is
// hashed when the seed is loaded.
type SeedUser struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	Role     domain.UserRole `json:"role"`
	Password string          `json:"password"`
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryUserRepository returns an in-process directory holding users.
func NewMemoryUserRepository(users ...domain.User) UserRepository {
	r := &memoryUserRepository{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// LoadSeedUsers reads a JSON array of SeedUser and hashes the passwords.
func LoadSeedUsers(path string, bcryptCost int) ([]domain.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed users: %w", err)
	}
	var seeds []SeedUser
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed users: %w", err)
	}

	now := time.Now()
	users := make([]domain.User, 0, len(seeds))
	for _, s := range seeds {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Role == "" {
			s.Role = domain.UserRoleMember
		}
		if !s.Role.Valid() {
			return nil, fmt.Errorf("seed user %s: invalid role %q", s.ID, s.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", s.ID, err)
		}
		users = append(users, domain.User{
			ID:           s.ID,
			Email:        s.Email,
			Name:         s.Name,
			Role:         s.Role,
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return users, nil
}

func (r *memoryUserRepository) List(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}
