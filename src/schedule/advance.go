package schedule

import (
	"time"

	"github.com/username/standingbank/backend/src/models"
)

// Progress is the schedule state after one successful execution.
type Progress struct {
	ExecutionsCount   int
	NextExecutionDate time.Time
	Status            models.StandingOrderStatus
}

// Completed reports whether the order reached its natural end.
func (p Progress) Completed() bool {
	return p.Status == models.StandingOrderCompleted
}

// Advance computes the schedule state after order has been paid once.
//
// The order completes when max_executions is reached or when the next date
// falls on or after end_date. On completion NextExecutionDate keeps the date
// that was just paid so the stored row never points past its end.
func Advance(order *models.StandingOrder) (Progress, error) {
	p := Progress{
		ExecutionsCount:   order.ExecutionsCount + 1,
		NextExecutionDate: order.NextExecutionDate,
		Status:            models.StandingOrderActive,
	}

	if order.MaxExecutions != nil && p.ExecutionsCount >= *order.MaxExecutions {
		p.Status = models.StandingOrderCompleted
		return p, nil
	}

	next, err := NextOccurrence(order.NextExecutionDate, order.Frequency)
	if err != nil {
		return Progress{}, err
	}
	if order.EndDate != nil && !next.Before(models.DateOf(*order.EndDate)) {
		p.Status = models.StandingOrderCompleted
		return p, nil
	}

	p.NextExecutionDate = next
	return p, nil
}
