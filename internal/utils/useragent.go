package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	BrowserVer string `json:"browser_ver"`
	IsBot      bool   `json:"is_bot"`
	Raw        string `json:"raw"`
}

// ParseUserAgent parses a User-Agent string and extracts device information
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" || userAgent == "system" {
		return DeviceInfo{
			DeviceType: "unknown",
			OS:         "Unknown",
			Browser:    "Unknown",
			Raw:        userAgent,
		}
	}

	parser := ua.New(userAgent)
	name, version := parser.Browser()
	if name == "" {
		name = "Unknown"
	}

	return DeviceInfo{
		DeviceType: deviceType(parser),
		OS:         osName(parser),
		Browser:    name,
		BrowserVer: version,
		IsBot:      parser.Bot(),
		Raw:        userAgent,
	}
}

func deviceType(parser *ua.UserAgent) string {
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, indicator := range []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"} {
		if strings.Contains(lower, indicator) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
