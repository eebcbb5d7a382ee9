package utils

import (
	"fmt"
	"strings"

	"github.com/avct/uasurfer"
)

type UserAgentInfo struct {
	Device  string
	OS      string
	Browser string
}

// ParseUserAgent resolves a raw user-agent string into coarse device, OS and
// browser facts for audit records. Returns nil when the device type cannot
// be established.
func ParseUserAgent(uaString string) *UserAgentInfo {
	ua := uasurfer.Parse(uaString)

	device := ""
	switch ua.DeviceType {
	case uasurfer.DeviceComputer:
		device = "Computer"
	case uasurfer.DeviceTablet:
		device = "Tablet"
	case uasurfer.DevicePhone:
		device = "Phone"
	case uasurfer.DeviceConsole:
		device = "Console"
	case uasurfer.DeviceWearable:
		device = "Wearable"
	case uasurfer.DeviceTV:
		device = "TV"
	default:
		return nil
	}

	os := fmt.Sprintf("%s %d.%d", ua.OS.Name.String(), ua.OS.Version.Major, ua.OS.Version.Minor)
	browser := fmt.Sprintf("%s %d.%d", ua.Browser.Name.String(), ua.Browser.Version.Major, ua.Browser.Version.Minor)

	return &UserAgentInfo{
		Device:  device,
		OS:      os,
		Browser: browser,
	}
}

var scriptedClientMarkers = []string{
	"bot", "crawler", "crawl", "spider", "scrape",
	"curl", "wget", "python", "java", "go-http", "ruby", "php",
	"httpclient", "okhttp", "libwww",
}

// IsSuspiciousUserAgent reports whether a user-agent string looks like a
// scripted client rather than a browser. Empty and very short strings count
// as suspicious; so do known automation markers and strings uasurfer cannot
// attribute to any browser or device.
func IsSuspiciousUserAgent(uaString string) bool {
	if len(uaString) < 10 {
		return true
	}

	lowered := strings.ToLower(uaString)
	for _, marker := range scriptedClientMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	ua := uasurfer.Parse(uaString)
	if ua.Browser.Name == uasurfer.BrowserUnknown && ua.DeviceType == uasurfer.DeviceUnknown {
		return true
	}
	return false
}
