package domain

import (
	"strings"
	"time"
)

// Product is a flash deal listing. Update methods return a modified copy.
type Product struct {
	ID          string
	Title       string
	Description string
	Price       Price
	Schedule    Schedule
	Specs       Specs
	Status      DealStatus
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewProduct(id, title, description string, price Price, schedule Schedule, specs Specs) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, invalid("productId", "cannot be empty")
	}
	if strings.TrimSpace(title) == "" {
		return Product{}, invalid("title", "cannot be empty")
	}
	if _, err := NewPrice(price.Original, price.Sale, price.Currency); err != nil {
		return Product{}, err
	}
	if _, err := NewSchedule(schedule.StartsAt, schedule.EndsAt, schedule.Timezone); err != nil {
		return Product{}, err
	}

	return Product{
		ID:          id,
		Title:       title,
		Description: description,
		Price:       price,
		Schedule:    schedule,
		Specs:       specs.clone(),
		Status:      DealStatusUpcoming,
	}, nil
}

// CalculateStatus derives the time-based status. SOLDOUT and ENDED are
// sticky; SOLDOUT itself is never produced here and must be layered on by
// the caller from the ledger's remaining count.
func (p Product) CalculateStatus(now time.Time) DealStatus {
	if p.Status == DealStatusSoldOut || p.Status == DealStatusEnded {
		return p.Status
	}
	switch {
	case !p.Schedule.HasStarted(now):
		return DealStatusUpcoming
	case p.Schedule.IsActive(now):
		return DealStatusActive
	default:
		return DealStatusEnded
	}
}

func (p Product) TransitionTo(target DealStatus) (Product, error) {
	if !p.Status.CanTransitionTo(target) {
		return Product{}, &TransitionError{Entity: "deal", From: string(p.Status), To: string(target)}
	}
	p.Status = target
	return p, nil
}

func (p Product) UpdatePrice(price Price) (Product, error) {
	price, err := NewPrice(price.Original, price.Sale, price.Currency)
	if err != nil {
		return Product{}, err
	}
	p.Price = price
	return p, nil
}

func (p Product) UpdateSchedule(schedule Schedule) (Product, error) {
	schedule, err := NewSchedule(schedule.StartsAt, schedule.EndsAt, schedule.Timezone)
	if err != nil {
		return Product{}, err
	}
	p.Schedule = schedule
	return p, nil
}

func (p Product) UpdateSpecs(specs Specs) Product {
	p.Specs = specs.clone()
	return p
}

func (p Product) UpdateTitle(title string) (Product, error) {
	if strings.TrimSpace(title) == "" {
		return Product{}, invalid("title", "cannot be empty")
	}
	p.Title = title
	return p, nil
}

func (p Product) UpdateDescription(description string) Product {
	p.Description = description
	return p
}
