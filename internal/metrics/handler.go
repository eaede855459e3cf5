package metrics

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the Prometheus scrape endpoint, optionally restricted
// to an IP allowlist. It is mounted on the API router rather than a
// separate listener.
func Handler(m *Metrics, allowedIPs []string, logger *slog.Logger) http.Handler {
	inner := promhttp.HandlerFor(
		m.Registry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)

	nets := parseAllowedIPs(allowedIPs, logger)
	if len(nets) == 0 {
		return inner
	}

	logger.Info("metrics IP filtering enabled", "allowed_networks", len(nets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := clientIP(r)
		if clientIP == nil {
			logger.Warn("could not parse client IP", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		for _, ipNet := range nets {
			if ipNet.Contains(clientIP) {
				inner.ServeHTTP(w, r)
				return
			}
		}

		logger.Warn("metrics access denied", "ip", clientIP.String())
		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// parseAllowedIPs accepts single IPs and CIDR ranges, skipping invalid
// entries with a warning
func parseAllowedIPs(allowedIPs []string, logger *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, ipStr := range allowedIPs {
		ipStr = strings.TrimSpace(ipStr)
		if ipStr == "" {
			continue
		}

		if strings.Contains(ipStr, "/") {
			_, ipNet, err := net.ParseCIDR(ipStr)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", ipStr, "error", err)
				continue
			}
			nets = append(nets, ipNet)
			continue
		}

		ip := net.ParseIP(ipStr)
		if ip == nil {
			logger.Warn("invalid IP in allowed_ips", "ip", ipStr)
			continue
		}
		var mask net.IPMask
		if ip.To4() != nil {
			mask = net.CIDRMask(32, 32)
		} else {
			mask = net.CIDRMask(128, 128)
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
	}
	return nets
}

// clientIP extracts the client IP, honoring proxy headers
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			if ip := net.ParseIP(strings.TrimSpace(parts[0])); ip != nil {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}
