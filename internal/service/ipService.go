package service

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/pkg/enrichment"
	"github.com/sirupsen/logrus"
)

type IPServiceImpl struct {
	ipRepo    postgres.IPRepositoryInterface
	cacheRepo postgres.CacheRepository
	provider  enrichment.Provider
	timeout   time.Duration
}

func NewIPService(
	ipRepo postgres.IPRepositoryInterface,
	cacheRepo postgres.CacheRepository,
	provider enrichment.Provider,
	timeout time.Duration,
) *IPServiceImpl {
	return &IPServiceImpl{
		ipRepo:    ipRepo,
		cacheRepo: cacheRepo,
		provider:  provider,
		timeout:   timeout,
	}
}

// IsLocalAddress reports callers that are never enriched.
func IsLocalAddress(ip netip.Addr) bool {
	ip = ip.Unmap()
	return !ip.IsValid() ||
		ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// Lookup returns the stored record for ip, enriching it on first sighting.
// Records are never refreshed once stored.
func (s *IPServiceImpl) Lookup(ctx context.Context, ip netip.Addr) (*entity.IPRecord, error) {
	ip = ip.Unmap()
	addr := ip.String()
	log := logrus.WithField("ip", addr)

	cached, err := s.cacheRepo.GetIP(ctx, addr)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, entity.ErrCacheMiss) {
		log.WithError(err).Warn("ip cache read failed")
	}

	record, err := s.ipRepo.FetchByAddress(ctx, addr)
	switch {
	case err == nil:
		s.remember(ctx, record)
		return record, nil
	case !errors.Is(err, entity.ErrNotFound):
		return nil, entity.NewInternal("failed to load ip record", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fetched, err := s.provider.Lookup(lookupCtx, ip)
	if err != nil {
		log.WithError(err).Error("ip enrichment failed")
		return nil, entity.NewServiceUnavailable("ip enrichment unavailable", err)
	}
	fetched.IPAddress = addr

	if err := s.ipRepo.Add(ctx, fetched); err != nil {
		return nil, entity.NewInternal("failed to store ip record", err)
	}

	// Re-read so a concurrent insert of the same address wins consistently.
	record, err = s.ipRepo.FetchByAddress(ctx, addr)
	if err != nil {
		return nil, entity.NewInternal("failed to load ip record", err)
	}

	log.WithField("is_proxy", record.IsProxy).Info("ip enriched")
	s.remember(ctx, record)
	return record, nil
}

func (s *IPServiceImpl) Ensure(ctx context.Context, ip netip.Addr) error {
	_, err := s.Lookup(ctx, ip)
	return err
}

func (s *IPServiceImpl) IsProxy(ctx context.Context, ip netip.Addr) (bool, error) {
	record, err := s.Lookup(ctx, ip)
	if err != nil {
		return false, err
	}
	return record.IsProxy, nil
}

func (s *IPServiceImpl) remember(ctx context.Context, record *entity.IPRecord) {
	if err := s.cacheRepo.SetIP(ctx, record); err != nil {
		logrus.WithError(err).WithField("ip", record.IPAddress).Warn("ip cache write failed")
	}
}
