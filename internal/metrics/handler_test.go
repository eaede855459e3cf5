package metrics

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseAllowedIPs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		allowedIPs []string
		wantCount  int
	}{
		{
			name:       "empty list",
			allowedIPs: nil,
			wantCount:  0,
		},
		{
			name:       "single IP",
			allowedIPs: []string{"192.168.1.1"},
			wantCount:  1,
		},
		{
			name:       "multiple IPs",
			allowedIPs: []string{"192.168.1.1", "10.0.0.1"},
			wantCount:  2,
		},
		{
			name:       "CIDR notation",
			allowedIPs: []string{"192.168.0.0/16", "10.0.0.0/8"},
			wantCount:  2,
		},
		{
			name:       "mixed",
			allowedIPs: []string{"192.168.1.1", "10.0.0.0/8", "172.16.0.1"},
			wantCount:  3,
		},
		{
			name:       "with invalid",
			allowedIPs: []string{"192.168.1.1", "invalid", "10.0.0.1"},
			wantCount:  2,
		},
		{
			name:       "IPv6",
			allowedIPs: []string{"::1", "fe80::/10"},
			wantCount:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nets := parseAllowedIPs(tt.allowedIPs, logger)
			if len(nets) != tt.wantCount {
				t.Errorf("expected %d allowed networks, got %d", tt.wantCount, len(nets))
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expectedIP string
	}{
		{
			name:       "from RemoteAddr with port",
			remoteAddr: "192.168.1.100:12345",
			expectedIP: "192.168.1.100",
		},
		{
			name:       "from X-Forwarded-For single",
			remoteAddr: "127.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			expectedIP: "10.0.0.1",
		},
		{
			name:       "from X-Forwarded-For multiple",
			remoteAddr: "127.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1, 127.0.0.1"},
			expectedIP: "10.0.0.1",
		},
		{
			name:       "from X-Real-IP",
			remoteAddr: "127.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "172.16.0.1"},
			expectedIP: "172.16.0.1",
		},
		{
			name:       "X-Forwarded-For takes precedence",
			remoteAddr: "127.0.0.1:12345",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.1",
				"X-Real-IP":       "172.16.0.1",
			},
			expectedIP: "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			ip := clientIP(req)
			if ip == nil {
				t.Fatal("clientIP returned nil")
			}
			if ip.String() != tt.expectedIP {
				t.Errorf("clientIP() = %s, want %s", ip.String(), tt.expectedIP)
			}
		})
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	m.IncSyncs("success")

	handler := Handler(m, nil, logger)

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "1.2.3.4:12345"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "arrdash_syncs_total") {
		t.Errorf("expected exposition to contain arrdash_syncs_total, got:\n%s", body)
	}
}

func TestHandlerIPFiltering(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()

	t.Run("allowed IP", func(t *testing.T) {
		handler := Handler(m, []string{"192.168.1.0/24"}, logger)

		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
	})

	t.Run("denied IP", func(t *testing.T) {
		handler := Handler(m, []string{"192.168.1.0/24"}, logger)

		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
		}
	})

	t.Run("proxy header honored", func(t *testing.T) {
		handler := Handler(m, []string{"10.0.0.0/8"}, logger)

		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		req.Header.Set("X-Forwarded-For", "10.0.0.7")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
	})
}

func TestIPNetContains(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	nets := parseAllowedIPs([]string{
		"192.168.1.100",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"::1",
		"fe80::/10",
	}, logger)

	tests := []struct {
		ip      string
		allowed bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("invalid test IP: %s", tt.ip)
			}
			var allowed bool
			for _, ipNet := range nets {
				if ipNet.Contains(ip) {
					allowed = true
					break
				}
			}
			if allowed != tt.allowed {
				t.Errorf("contains(%s) = %v, want %v", tt.ip, allowed, tt.allowed)
			}
		})
	}
}
