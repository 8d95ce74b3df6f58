package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// ErrVerificationNotFound signals a missing or expired pending registration.
var ErrVerificationNotFound = errors.New("verification entry not found")

const verificationKeyPrefix = "verify:"

// VerificationStore keeps pending registrations in Redis under a TTL.
type VerificationStore struct {
	client *redis.Client
}

// NewVerificationStore constructs the store.
func NewVerificationStore(client *redis.Client) *VerificationStore {
	return &VerificationStore{client: client}
}

func verificationKey(email string) string {
	return verificationKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Save stores the pending registration, replacing any previous one.
func (s *VerificationStore) Save(ctx context.Context, email string, pending models.PendingRegistration, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending registration: %w", err)
	}
	if err := s.client.Set(ctx, verificationKey(email), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store pending registration: %w", err)
	}
	return nil
}

// Get loads the pending registration for an email.
func (s *VerificationStore) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	raw, err := s.client.Get(ctx, verificationKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("load pending registration: %w", err)
	}
	var pending models.PendingRegistration
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending registration: %w", err)
	}
	return &pending, nil
}

// Delete removes the pending registration.
func (s *VerificationStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, verificationKey(email)).Err(); err != nil {
		return fmt.Errorf("delete pending registration: %w", err)
	}
	return nil
}
