package store

import (
	"context"
	"errors"
	"time"

	"github.com/HRV220/plate-detect/models"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskExists       = errors.New("task already exists")
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// Store holds one TTL-bearing record per task id. The TTL is fixed at
// creation and is never extended by updates.
type Store interface {
	Create(ctx context.Context, task *models.Task, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, id string, mutate func(*models.Task) error) (*models.Task, error)
	TTLRemaining(ctx context.Context, id string) (time.Duration, error)
	ExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}
