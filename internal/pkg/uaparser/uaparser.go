package uaparser

import (
	"strings"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/mssola/useragent"
)

const (
	DeviceBot      = "bot"
	DeviceTablet   = "tablet"
	DevicePhone    = "phone"
	DeviceComputer = "computer"
)

type Result struct {
	Browser string
	OS      string
	Device  string
}

// Parse classifies a raw User-Agent header into browser, OS and device
// families. Bots are detected first since crawlers often spoof mobile tokens.
func Parse(raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Browser: entity.UnknownValue, OS: entity.UnknownValue, Device: entity.UnknownValue}
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()

	return Result{
		Browser: orUnknown(browser),
		OS:      orUnknown(ua.OSInfo().Name),
		Device:  device(ua, raw),
	}
}

func device(ua *useragent.UserAgent, raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case ua.Bot():
		return DeviceBot
	case strings.Contains(lower, "ipad"),
		strings.Contains(lower, "tablet"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return DeviceTablet
	case ua.Mobile():
		return DevicePhone
	case isDesktopOS(ua.OSInfo().Name):
		return DeviceComputer
	default:
		return entity.UnknownValue
	}
}

// desktopOSPrefixes are OSInfo names of desktop families; CrOS is ChromeOS.
var desktopOSPrefixes = []string{"Windows", "Mac OS X", "Linux", "CrOS", "ChromeOS"}

func isDesktopOS(name string) bool {
	for _, prefix := range desktopOSPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return entity.UnknownValue
	}
	return s
}
