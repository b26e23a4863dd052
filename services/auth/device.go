package auth

import (
	"strings"
	"unicode/utf8"

	"github.com/mileusna/useragent"
)

const (
	defaultDeviceName = "api"
	maxDeviceName     = 255
)

// DeviceName picks the token name: the client-supplied name, else a
// "<browser> on <os>" label parsed from the user agent, else "api".
func DeviceName(requested, userAgent string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return truncate(name)
	}

	if userAgent == "" {
		return defaultDeviceName
	}

	ua := useragent.Parse(userAgent)
	switch {
	case ua.Name != "" && ua.OS != "":
		return truncate(ua.Name + " on " + ua.OS)
	case ua.Name != "":
		return truncate(ua.Name)
	default:
		return defaultDeviceName
	}
}

// truncate caps name at maxDeviceName characters without splitting a rune.
func truncate(name string) string {
	if utf8.RuneCountInString(name) > maxDeviceName {
		return string([]rune(name)[:maxDeviceName])
	}
	return name
}
