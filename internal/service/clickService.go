package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/pkg/kafka"
	"github.com/ds124wfegd/shortlink/internal/pkg/uaparser"
	"github.com/sirupsen/logrus"
)

type ClickServiceImpl struct {
	clickRepo postgres.ClickRepositoryInterface
	producer  kafka.Producer
}

func NewClickService(clickRepo postgres.ClickRepositoryInterface, producer kafka.Producer) *ClickServiceImpl {
	return &ClickServiceImpl{
		clickRepo: clickRepo,
		producer:  producer,
	}
}

// RecordClick stores one click. Publishing to the click stream is best effort.
func (s *ClickServiceImpl) RecordClick(ctx context.Context, in entity.ClickInput) error {
	ua := truncate(in.UserAgent, entity.MaxUserAgentLength)
	parsed := uaparser.Parse(ua)

	click := &entity.Click{
		URLID:     in.URLID,
		IPID:      in.IPID,
		UserAgent: ua,
		Browser:   parsed.Browser,
		OS:        parsed.OS,
		Device:    parsed.Device,
	}
	if in.IP != "" {
		ip := in.IP
		click.IPAddress = &ip
	}

	if _, err := s.clickRepo.Add(ctx, click); err != nil {
		return fmt.Errorf("record click for %q: %w", in.ShortCode, err)
	}

	event := entity.ClickEvent{
		ClickID:   click.ID,
		URLID:     click.URLID,
		ShortCode: in.ShortCode,
		IP:        in.IP,
		Browser:   click.Browser,
		OS:        click.OS,
		Device:    click.Device,
		ClickedAt: click.ClickedAt,
	}
	if err := s.producer.Publish(ctx, click.URLID, event); err != nil {
		logrus.WithError(err).WithField("short_code", in.ShortCode).Warn("failed to publish click event")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
