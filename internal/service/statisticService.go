package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
)

type StatisticServiceImpl struct {
	linkRepo  postgres.LinkRepositoryInterface
	clickRepo postgres.ClickRepositoryInterface
	clock     Clock
}

func NewStatisticService(
	linkRepo postgres.LinkRepositoryInterface,
	clickRepo postgres.ClickRepositoryInterface,
	clock Clock,
) *StatisticServiceImpl {
	if clock == nil {
		clock = time.Now
	}
	return &StatisticServiceImpl{
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		clock:     clock,
	}
}

func (s *StatisticServiceImpl) Breakdown(ctx context.Context, ownerID int64, shortCode string, dimension entity.StatDimension, period string) (entity.Breakdown, error) {
	if !dimension.Valid() {
		return nil, entity.NewValidation("unknown statistics dimension")
	}
	since, err := s.since(period)
	if err != nil {
		return nil, err
	}

	link, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode, entity.LinkFieldID)
	if err != nil {
		return nil, err
	}

	rows, err := s.clickRepo.FieldStats(ctx, link.ID, dimension, since)
	if err != nil {
		return nil, entity.NewInternal("failed to load statistics", err)
	}
	return rows, nil
}

func (s *StatisticServiceImpl) Guests(ctx context.Context, ownerID int64, shortCode string, period string) (*entity.GuestStats, error) {
	since, err := s.since(period)
	if err != nil {
		return nil, err
	}

	link, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode, entity.LinkFieldID)
	if err != nil {
		return nil, err
	}

	stats, err := s.clickRepo.GuestStats(ctx, link.ID, since)
	if err != nil {
		return nil, entity.NewInternal("failed to load statistics", err)
	}
	return stats, nil
}

func (s *StatisticServiceImpl) since(period string) (*time.Time, error) {
	p, err := entity.ParsePeriod(period)
	if err != nil {
		return nil, entity.NewValidation(err.Error())
	}
	return p.Since(s.clock()), nil
}
