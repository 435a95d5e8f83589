package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	charset             = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxURLLength        = 2048
	maxGenerateAttempts = 10

	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

var shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,16}$`)

// reservedCodes collide with top-level routes.
var reservedCodes = map[string]bool{
	"auth":   true,
	"url":    true,
	"stats":  true,
	"health": true,
}

type LinkServiceConfig struct {
	BaseURL         string
	ShortCodeLength int
	// MaxLifetime caps expires_at when positive. Zero means links may live forever.
	MaxLifetime time.Duration
}

type LinkServiceImpl struct {
	linkRepo  postgres.LinkRepositoryInterface
	cacheRepo postgres.CacheRepository
	hasher    PasswordHasher
	clock     Clock
	config    *LinkServiceConfig
}

func NewLinkService(
	linkRepo postgres.LinkRepositoryInterface,
	cacheRepo postgres.CacheRepository,
	hasher PasswordHasher,
	clock Clock,
	config *LinkServiceConfig,
) *LinkServiceImpl {
	if clock == nil {
		clock = time.Now
	}
	if config.ShortCodeLength == 0 {
		config.ShortCodeLength = 8
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &LinkServiceImpl{
		linkRepo:  linkRepo,
		cacheRepo: cacheRepo,
		hasher:    hasher,
		clock:     clock,
		config:    config,
	}
}

func (s *LinkServiceImpl) generateShortCode() string {
	code := make([]byte, s.config.ShortCodeLength)
	for i := range code {
		code[i] = charset[rand.IntN(len(charset))]
	}
	return string(code)
}

func (s *LinkServiceImpl) Create(ctx context.Context, ownerID int64, req entity.CreateLinkRequest) (*entity.LinkResponse, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if err := validateWindow(req.ValidFrom, req.ValidUntil); err != nil {
		return nil, err
	}
	expiresAt, err := s.expiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	exists, err := s.linkRepo.ExistsForOwner(ctx, ownerID, req.URL)
	if err != nil {
		return nil, entity.NewInternal("failed to check url", err)
	}
	if exists {
		return nil, entity.NewConflict("url already shortened")
	}

	link := &entity.Link{
		UserID:      ownerID,
		OriginalURL: req.URL,
		ExpiresAt:   expiresAt,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		AllowProxy:  true,
	}
	if req.AllowProxy != nil {
		link.AllowProxy = *req.AllowProxy
	}
	if req.Password != "" {
		hash, err := hashPassword(s.hasher, req.Password)
		if err != nil {
			return nil, err
		}
		link.Password = &hash
	}

	if req.ShortCode != "" {
		if err := validateShortCode(req.ShortCode); err != nil {
			return nil, err
		}
		link.ShortCode = req.ShortCode
		if err := s.insert(ctx, link); err != nil {
			return nil, err
		}
	} else if err := s.insertGenerated(ctx, link); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    ownerID,
		"short_code": link.ShortCode,
	}).Info("link created")

	resp := entity.NewLinkResponse(link, s.config.BaseURL)
	return &resp, nil
}

func (s *LinkServiceImpl) insert(ctx context.Context, link *entity.Link) error {
	exists, err := s.linkRepo.Exists(ctx, link.ShortCode)
	if err != nil {
		return entity.NewInternal("failed to check short code", err)
	}
	if exists {
		return entity.NewConflict("short code already taken")
	}
	if _, err := s.linkRepo.Create(ctx, link); err != nil {
		return mapLinkWriteError(err)
	}
	return nil
}

func (s *LinkServiceImpl) insertGenerated(ctx context.Context, link *entity.Link) error {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		link.ShortCode = s.generateShortCode()
		_, err := s.linkRepo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, entity.ErrShortCodeTaken) {
			return mapLinkWriteError(err)
		}
	}
	return entity.NewInternal("failed to generate a free short code", nil)
}

func (s *LinkServiceImpl) List(ctx context.Context, ownerID int64) ([]entity.LinkResponse, error) {
	links, err := s.linkRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, entity.NewInternal("failed to list links", err)
	}

	resp := make([]entity.LinkResponse, 0, len(links))
	for i := range links {
		resp = append(resp, entity.NewLinkResponse(&links[i], s.config.BaseURL))
	}
	return resp, nil
}

func (s *LinkServiceImpl) Get(ctx context.Context, ownerID int64, shortCode string) (*entity.LinkResponse, error) {
	link, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode)
	if err != nil {
		return nil, err
	}
	resp := entity.NewLinkResponse(link, s.config.BaseURL)
	return &resp, nil
}

func (s *LinkServiceImpl) Update(ctx context.Context, ownerID int64, shortCode string, req entity.UpdateLinkRequest) (*entity.LinkResponse, error) {
	link, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)

	if req.URL != nil && *req.URL != link.OriginalURL {
		if err := validateURL(*req.URL); err != nil {
			return nil, err
		}
		fields[entity.UpdateOriginalURL] = *req.URL
	}

	newCode := shortCode
	if req.ShortCode != nil && *req.ShortCode != shortCode {
		if err := validateShortCode(*req.ShortCode); err != nil {
			return nil, err
		}
		newCode = *req.ShortCode
		fields[entity.UpdateShortCode] = newCode
	}

	switch {
	case req.ClearPassword:
		fields[entity.UpdatePassword] = nil
	case req.Password != nil && *req.Password == "":
		fields[entity.UpdatePassword] = nil
	case req.Password != nil:
		hash, err := hashPassword(s.hasher, *req.Password)
		if err != nil {
			return nil, err
		}
		fields[entity.UpdatePassword] = hash
	}

	from, until := link.ValidFrom, link.ValidUntil
	if req.ClearWindow {
		from, until = nil, nil
		fields[entity.UpdateValidFrom] = nil
		fields[entity.UpdateValidUntil] = nil
	}
	if req.ValidFrom != nil {
		from = req.ValidFrom
		fields[entity.UpdateValidFrom] = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		until = req.ValidUntil
		fields[entity.UpdateValidUntil] = *req.ValidUntil
	}
	if err := validateWindow(from, until); err != nil {
		return nil, err
	}

	switch {
	case req.ClearExpiry:
		if s.config.MaxLifetime > 0 {
			return nil, entity.NewValidation("expiration cannot be removed while a maximum link lifetime is configured")
		}
		fields[entity.UpdateExpiresAt] = nil
	case req.ExpiresAt != nil:
		expiresAt, err := s.expiry(req.ExpiresAt)
		if err != nil {
			return nil, err
		}
		fields[entity.UpdateExpiresAt] = *expiresAt
	}

	if req.AllowProxy != nil {
		fields[entity.UpdateAllowProxy] = *req.AllowProxy
	}

	if len(fields) == 0 {
		resp := entity.NewLinkResponse(link, s.config.BaseURL)
		return &resp, nil
	}

	if err := s.linkRepo.UpdateFields(ctx, shortCode, fields); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.NewNotFound("link not found")
		}
		return nil, mapLinkWriteError(err)
	}
	s.invalidate(ctx, shortCode, newCode)

	updated, err := ownedLink(ctx, s.linkRepo, ownerID, newCode)
	if err != nil {
		return nil, err
	}
	resp := entity.NewLinkResponse(updated, s.config.BaseURL)
	return &resp, nil
}

func (s *LinkServiceImpl) Delete(ctx context.Context, ownerID int64, shortCode string) error {
	if _, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode, entity.LinkFieldID); err != nil {
		return err
	}

	if err := s.linkRepo.DeleteByShortCode(ctx, shortCode); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.NewNotFound("link not found")
		}
		return entity.NewInternal("failed to delete link", err)
	}
	s.invalidate(ctx, shortCode)
	return nil
}

func (s *LinkServiceImpl) DeleteAll(ctx context.Context, ownerID int64) (int64, error) {
	links, err := s.linkRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, entity.NewInternal("failed to list links", err)
	}

	deleted, err := s.linkRepo.DeleteAllByOwner(ctx, ownerID)
	if err != nil {
		return 0, entity.NewInternal("failed to delete links", err)
	}

	codes := make([]string, 0, len(links))
	for _, l := range links {
		codes = append(codes, l.ShortCode)
	}
	s.invalidate(ctx, codes...)
	return deleted, nil
}

// QRCode renders a PNG pointing at the public short URL.
func (s *LinkServiceImpl) QRCode(ctx context.Context, ownerID int64, shortCode string, size int) ([]byte, error) {
	link, err := ownedLink(ctx, s.linkRepo, ownerID, shortCode, entity.LinkFieldShortCode)
	if err != nil {
		return nil, err
	}

	switch {
	case size == 0:
		size = defaultQRSize
	case size < minQRSize || size > maxQRSize:
		return nil, entity.NewValidation("qr size must be between 64 and 1024")
	}

	png, err := qrcode.Encode(s.config.BaseURL+"/"+link.ShortCode, qrcode.Medium, size)
	if err != nil {
		return nil, entity.NewInternal("failed to render qr code", err)
	}
	return png, nil
}

func (s *LinkServiceImpl) invalidate(ctx context.Context, shortCodes ...string) {
	if err := s.cacheRepo.DeleteLink(ctx, shortCodes...); err != nil {
		logrus.WithError(err).WithField("short_codes", shortCodes).Warn("link cache invalidation failed")
	}
}

// expiry validates a requested expiration against the configured cap. When
// a cap is set and nothing was requested the cap itself is used.
func (s *LinkServiceImpl) expiry(requested *time.Time) (*time.Time, error) {
	now := s.clock()

	if requested != nil && !requested.After(now) {
		return nil, entity.NewValidation("expires_at must be in the future")
	}
	if s.config.MaxLifetime <= 0 {
		return requested, nil
	}

	limit := now.Add(s.config.MaxLifetime)
	if requested == nil {
		return &limit, nil
	}
	if requested.After(limit) {
		return nil, entity.NewValidation("expires_at exceeds the maximum link lifetime")
	}
	return requested, nil
}

func mapLinkWriteError(err error) error {
	switch {
	case errors.Is(err, entity.ErrShortCodeTaken):
		return entity.NewConflict("short code already taken")
	case errors.Is(err, entity.ErrDuplicateURL):
		return entity.NewConflict("url already shortened")
	case errors.Is(err, entity.ErrConflict):
		return entity.NewConflict("link already exists")
	default:
		return entity.NewInternal("failed to save link", err)
	}
}

func validateURL(raw string) error {
	if len(raw) > maxURLLength {
		return entity.NewValidation("url is too long")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return entity.NewValidation("url must be an absolute http or https url")
	}
	return nil
}

func validateShortCode(code string) error {
	if !shortCodePattern.MatchString(code) {
		return entity.NewValidation("short code must be 3-16 characters of letters, digits, '_' or '-'")
	}
	if reservedCodes[strings.ToLower(code)] {
		return entity.NewValidation("short code is reserved")
	}
	return nil
}

// validateWindow rejects windows that are empty or cross midnight.
func validateWindow(from, until *entity.TimeOfDay) error {
	if from != nil && until != nil && *from >= *until {
		return entity.NewValidation("valid_from must be earlier than valid_until")
	}
	return nil
}
