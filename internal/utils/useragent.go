package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is the parsed form of a User-Agent string stored on payment audits
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, bot, unknown
	Platform   string `json:"platform"`    // android, ios, windows, mac, linux, chromeos, unknown
	OS         string `json:"os"`
	Browser    string `json:"browser"`
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

// platforms is matched in order against the lowercased OS name
var platforms = []struct{ marker, platform string }{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"chrome os", "chromeos"},
	{"cros", "chromeos"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"ubuntu", "linux"},
	{"linux", "linux"},
}

// ParseUserAgent extracts device information from a User-Agent string
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", Platform: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		DeviceType: deviceType(parser),
		Platform:   "unknown",
		OS:         "Unknown",
		Browser:    "Unknown",
	}

	os := parser.OSInfo()
	if os.Name != "" {
		info.OS = strings.TrimSpace(os.Name + " " + os.Version)
		name := strings.ToLower(os.Name)
		for _, p := range platforms {
			if strings.Contains(name, p.marker) {
				info.Platform = p.platform
				break
			}
		}
	}
	if name, _ := parser.Browser(); name != "" {
		info.Browser = name
	}
	return info
}

func deviceType(parser *ua.UserAgent) string {
	if parser.Bot() {
		return "bot"
	}
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, marker := range tabletMarkers {
		if strings.Contains(lower, marker) {
			return "tablet"
		}
	}
	return "mobile"
}
