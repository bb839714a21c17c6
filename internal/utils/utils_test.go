package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name       string
		userAgent  string
		deviceType string
		platform   string
	}{
		{
			name:       "iPhone Safari",
			userAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			deviceType: "mobile",
			platform:   "ios",
		},
		{
			name:       "Windows Chrome",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			deviceType: "desktop",
			platform:   "windows",
		},
		{
			name:       "Empty",
			userAgent:  "",
			deviceType: "unknown",
			platform:   "unknown",
		},
		{
			name:       "Googlebot",
			userAgent:  "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: "bot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseUserAgent(tt.userAgent)
			assert.Equal(t, tt.deviceType, info.DeviceType)
			if tt.platform != "" {
				assert.Equal(t, tt.platform, info.Platform)
			}
		})
	}
}

func TestGetRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"Public X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"First Public Forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 198.51.100.4, 203.0.113.9"}, "198.51.100.4"},
		{"All Private Forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.2"}, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetRealIP(c))
		})
	}

	t.Run("User Agent Fallback", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		assert.Equal(t, "Unknown", GetUserAgent(c))
	})
}
