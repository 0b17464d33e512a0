package clock

import (
	"context"
	"time"
)

// Системные часы. Grace Day - 1-е число календарного месяца.
type System struct{}

func NewSystem() System {
	return System{}
}

func (System) Now(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (System) IsGraceDay(ctx context.Context) (bool, error) {
	return time.Now().Day() == 1, nil
}

func (System) CurrentMonth(ctx context.Context) (string, error) {
	return time.Now().Format("2006-01"), nil
}
