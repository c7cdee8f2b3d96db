package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body
const SignatureHeader = "X-Signature"

// maxCallbackBody caps how much of a callback is read for signing
const maxCallbackBody = 1 << 20

// WebhookAuthMiddleware authenticates provider callbacks. When a secret is
// configured the body must carry a valid signature; when an allow-list is
// configured the caller IP must be on it. Both apply when both are set.
func WebhookAuthMiddleware(cfg config.WebhookConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	allowed := parseAllowList(cfg.AllowedIPs)

	return func(c *gin.Context) {
		if len(secret) == 0 && len(allowed) == 0 {
			slog.Error("WebhookAuthMiddleware: neither a secret nor an IP allow-list is configured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Callback authentication is not configured"})
			return
		}

		if len(allowed) > 0 && !ipAllowed(allowed, c.ClientIP()) {
			slog.Warn("Rejected callback from unlisted address", "clientIp", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		if len(secret) > 0 {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			if !ValidSignature(secret, body, c.GetHeader(SignatureHeader)) {
				slog.Warn("Rejected callback with bad signature", "clientIp", c.ClientIP())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
				return
			}
		}

		c.Next()
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares signature against the expected HMAC in constant time.
// A "sha256=" prefix is accepted.
func ValidSignature(secret, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}

func parseAllowList(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil && ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			slog.Warn("Ignoring invalid webhook allow-list entry", "entry", entry)
			continue
		}
		nets = append(nets, n)
	}
	return nets
}

func ipAllowed(nets []*net.IPNet, clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
