package repository

import (
	"context"

	"github.com/minseok/weft/internal/weft"
)

// ScheduleRepository abstracts persistence for cron schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, s *weft.Schedule) error
	Get(ctx context.Context, id string) (*weft.Schedule, error)
	List(ctx context.Context) ([]*weft.Schedule, error)
	Delete(ctx context.Context, id string) error
}
