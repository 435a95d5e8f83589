package service

import (
	"context"
	"errors"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/sirupsen/logrus"
)

type RedirectServiceImpl struct {
	linkRepo   postgres.LinkRepositoryInterface
	cacheRepo  postgres.CacheRepository
	ipService  IPService
	dispatcher ClickDispatcher
	hasher     PasswordHasher
	clock      Clock
	location   *time.Location
}

func NewRedirectService(
	linkRepo postgres.LinkRepositoryInterface,
	cacheRepo postgres.CacheRepository,
	ipService IPService,
	dispatcher ClickDispatcher,
	hasher PasswordHasher,
	clock Clock,
	location *time.Location,
) *RedirectServiceImpl {
	if clock == nil {
		clock = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &RedirectServiceImpl{
		linkRepo:   linkRepo,
		cacheRepo:  cacheRepo,
		ipService:  ipService,
		dispatcher: dispatcher,
		hasher:     hasher,
		clock:      clock,
		location:   location,
	}
}

// Resolve applies the access policy of a link in a fixed order: proxy,
// password, expiration, then the daily window. A click is recorded only when
// every check passes.
func (s *RedirectServiceImpl) Resolve(ctx context.Context, req entity.ResolveRequest) (string, error) {
	log := logrus.WithFields(logrus.Fields{
		"short_code": req.ShortCode,
		"ip":         req.IP.String(),
	})

	var ipRecord *entity.IPRecord
	var lookupErr error
	if !IsLocalAddress(req.IP) {
		ipRecord, lookupErr = s.ipService.Lookup(ctx, req.IP)
	}

	link, err := s.policy(ctx, req.ShortCode)
	if err != nil {
		return "", err
	}

	if lookupErr != nil {
		if !link.AllowProxy {
			return "", lookupErr
		}
		log.WithError(lookupErr).Warn("ip enrichment failed, link allows proxies")
		ipRecord = nil
	}
	if ipRecord != nil && ipRecord.IsProxy && !link.AllowProxy {
		return "", entity.NewForbidden("proxy detected")
	}

	if link.HasPassword() {
		if req.Password == "" {
			return "", entity.NewUnauthorized("password required")
		}
		ok, err := s.hasher.Check(*link.Password, req.Password)
		if err != nil {
			return "", entity.NewInternal("failed to verify password", err)
		}
		if !ok {
			return "", entity.NewUnauthorized("invalid password")
		}
	}

	now := s.clock()
	if link.ExpiresAt != nil && !now.Before(*link.ExpiresAt) {
		return "", entity.NewGone("link expired")
	}

	timeOfDay := entity.TimeOfDayOf(now.In(s.location))
	if link.ValidFrom != nil && timeOfDay < *link.ValidFrom {
		return "", entity.NewForbidden("not yet allowed")
	}
	if link.ValidUntil != nil && timeOfDay > *link.ValidUntil {
		return "", entity.NewForbidden("window closed")
	}

	click := entity.ClickInput{
		URLID:     link.ID,
		ShortCode: link.ShortCode,
		UserAgent: req.UserAgent,
	}
	if req.IP.IsValid() {
		click.IP = req.IP.Unmap().String()
	}
	if ipRecord != nil {
		id := ipRecord.ID
		click.IPID = &id
	}
	if !s.dispatcher.Dispatch(click) {
		log.Warn("click not recorded")
	}

	return link.OriginalURL, nil
}

// policy reads the redirect fields of a link through the cache.
func (s *RedirectServiceImpl) policy(ctx context.Context, shortCode string) (*entity.Link, error) {
	cached, err := s.cacheRepo.GetLink(ctx, shortCode)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, entity.ErrCacheMiss) {
		logrus.WithError(err).WithField("short_code", shortCode).Warn("link cache read failed")
	}

	link, err := s.linkRepo.FetchByShortCode(ctx, shortCode, entity.PolicyLinkFields...)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.NewNotFound("link not found")
		}
		return nil, entity.NewInternal("failed to load link", err)
	}

	if err := s.cacheRepo.SetLink(ctx, link); err != nil {
		logrus.WithError(err).WithField("short_code", shortCode).Warn("link cache write failed")
	}
	return link, nil
}
