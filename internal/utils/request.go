package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
	ua "github.com/mssola/user_agent"
)

// GetRealIP returns the client address, preferring the first public IP in
// X-Real-IP or X-Forwarded-For over the socket address
func GetRealIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); realIP != "" {
		if ip := net.ParseIP(realIP); ip != nil && !ip.IsPrivate() {
			return realIP
		}
	}

	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		var firstValid string
		for _, part := range strings.Split(forwarded, ",") {
			candidate := strings.TrimSpace(part)
			ip := net.ParseIP(candidate)
			if ip == nil {
				continue
			}
			if firstValid == "" {
				firstValid = candidate
			}
			if !ip.IsPrivate() && !ip.IsLoopback() {
				return candidate
			}
		}
		if firstValid != "" {
			return firstValid
		}
	}

	return c.ClientIP()
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	agent := c.Request.UserAgent()
	if agent == "" {
		return "Unknown"
	}
	return agent
}

// DeviceInfo holds the parts of a User-Agent worth keeping in audit details
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, cli, unknown
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

// ParseUserAgent parses a User-Agent string into DeviceInfo
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	if strings.HasPrefix(strings.ToLower(userAgent), "portalctl/") {
		return DeviceInfo{DeviceType: "cli", OS: "Unknown", Browser: "portalctl"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		DeviceType: DeviceType(userAgent),
		OS:         "Unknown",
		Browser:    "Unknown",
		IsBot:      parser.Bot(),
	}

	if os := parser.OSInfo(); os.Name != "" {
		info.OS = strings.TrimSpace(os.Name + " " + os.Version)
	}
	if name, _ := parser.Browser(); name != "" {
		info.Browser = name
	}

	return info
}

// DeviceType classifies a User-Agent as mobile, tablet, desktop or cli
func DeviceType(userAgent string) string {
	lower := strings.ToLower(userAgent)
	switch {
	case userAgent == "" || userAgent == "Unknown":
		return "unknown"
	case strings.HasPrefix(lower, "portalctl/"):
		return "cli"
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return "tablet"
	case ua.New(userAgent).Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}
