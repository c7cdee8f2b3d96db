package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/gin-gonic/gin"
)

func newWebhookRouter(cfg config.WebhookConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", WebhookAuthMiddleware(cfg), func(c *gin.Context) {
		var body map[string]string
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func postHook(r *gin.Engine, body, signature, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidSignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"reference":"TXN1"}`)
	sig := Sign(secret, body)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"plain hex", sig, true},
		{"prefixed", "sha256=" + sig, true},
		{"empty", "", false},
		{"not hex", "zzzz", false},
		{"wrong key", Sign([]byte("other"), body), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidSignature(secret, body, tt.signature); got != tt.want {
				t.Errorf("ValidSignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookAuthSignature(t *testing.T) {
	r := newWebhookRouter(config.WebhookConfig{Secret: "s3cret"})
	body := `{"reference":"TXN1"}`

	w := postHook(r, body, Sign([]byte("s3cret"), []byte(body)), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	// The handler must still see the body after verification
	if !bytes.Contains(w.Body.Bytes(), []byte("TXN1")) {
		t.Errorf("Expected body to be restored, got %s", w.Body.String())
	}

	if w := postHook(r, body, "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without signature, got %d", w.Code)
	}
	if w := postHook(r, `{"reference":"TXN2"}`, Sign([]byte("s3cret"), []byte(body)), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for tampered body, got %d", w.Code)
	}
}

func TestWebhookAuthAllowList(t *testing.T) {
	r := newWebhookRouter(config.WebhookConfig{AllowedIPs: []string{"10.1.0.0/16", "192.0.2.7", "bogus"}})
	body := `{"reference":"TXN1"}`

	tests := []struct {
		addr string
		want int
	}{
		{"10.1.44.3:5000", http.StatusOK},
		{"192.0.2.7:443", http.StatusOK},
		{"192.0.2.8:443", http.StatusForbidden},
		{"10.2.0.1:5000", http.StatusForbidden},
	}
	for _, tt := range tests {
		if w := postHook(r, body, "", tt.addr); w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.addr, tt.want, w.Code)
		}
	}
}

func TestWebhookAuthNotConfigured(t *testing.T) {
	r := newWebhookRouter(config.WebhookConfig{})

	if w := postHook(r, `{}`, "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
