package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"

	applog "smartspend/internal/log"
)

// Reason names why a request was flagged. The empty Reason means clean.
type Reason string

const (
	ReasonTraversal    Reason = "path_traversal"
	ReasonProbe        Reason = "probe_path"
	ReasonInjection    Reason = "injection"
	ReasonScanner      Reason = "scanner_agent"
	ReasonMethod       Reason = "unusual_method"
	ReasonOversizedURL Reason = "oversized_url"
	ReasonProxyChain   Reason = "proxy_chain"
	ReasonUploadType   Reason = "upload_content_type"
	ReasonAPIBodyType  Reason = "api_content_type"
)

const (
	maxURLLength         = 2048
	maxForwardedHops     = 6
	uploadPath           = "/upload"
	apiPrefix            = "/api/"
	multipartContentType = "multipart/form-data"
)

// routePrefixes are the paths the server answers. Probe patterns are only
// checked outside them, so a ref or an email never trips them.
var routePrefixes = []string{
	uploadPath, apiPrefix, "/download/", "/healthz", "/health", "/readyz", "/metrics",
}

var (
	traversalPatterns = []string{"../", "..\\", "%2e%2e", "%2f..", "..%2f"}
	probePatterns     = []string{
		".env", ".git", ".ssh", ".php", "wp-", "phpmyadmin", "cgi-bin",
		"actuator", "server-status", ".aws", "config.json",
	}
	injectionPatterns = []string{
		"<script", "javascript:", "union select", "eval(", "etc/passwd",
		"cmd.exe", "' or '1'='1", "sleep(",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
		"wpscan", "nuclei", "scanner",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}

	// apiBodyTypes are the bodies the JSON API parses; an empty type is
	// treated as JSON.
	apiBodyTypes = []string{"application/json", "application/x-www-form-urlencoded", multipartContentType}
)

var defaultTrustedProxies = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"}

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags requests that do not look like SmartSpend clients and
// resolves client addresses behind trusted proxies.
type Detector struct {
	suspicious     atomic.Int64
	invalidIP      atomic.Int64
	trustedProxies []*net.IPNet
}

func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range defaultTrustedProxies {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// Inspect returns the first reason r looks hostile, or "" when it does not.
// Flagged requests are counted.
func (d *Detector) Inspect(r *http.Request) Reason {
	reason := classify(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

// DetectSuspiciousRequest reports whether Inspect flags r.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	return d.Inspect(r) != ""
}

func classify(r *http.Request) Reason {
	path := strings.ToLower(r.URL.EscapedPath())
	query := strings.ToLower(r.URL.RawQuery)
	if decoded, err := url.QueryUnescape(query); err == nil {
		query = decoded
	}

	switch {
	case containsAny(path, traversalPatterns) || containsAny(query, traversalPatterns):
		return ReasonTraversal
	case !knownRoute(path) && containsAny(path, probePatterns):
		return ReasonProbe
	case containsAny(path, injectionPatterns) || containsAny(query, injectionPatterns):
		return ReasonInjection
	case containsAny(strings.ToLower(r.UserAgent()), scannerAgents):
		return ReasonScanner
	case slices.Contains(unusualMethods, r.Method):
		return ReasonMethod
	case len(r.URL.String()) > maxURLLength:
		return ReasonOversizedURL
	case strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardedHops:
		return ReasonProxyChain
	}

	if r.Method == http.MethodPost {
		ct := strings.ToLower(r.Header.Get("Content-Type"))
		switch {
		case path == uploadPath && !strings.HasPrefix(ct, multipartContentType):
			return ReasonUploadType
		case strings.HasPrefix(path, apiPrefix) && ct != "" && !hasAnyPrefix(ct, apiBodyTypes):
			return ReasonAPIBodyType
		}
	}
	return ""
}

func knownRoute(path string) bool {
	return hasAnyPrefix(path, routePrefixes)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the client address. Forwarded headers are only
// honoured when the connection comes from a trusted proxy; an unparseable
// forwarded address counts as an invalid IP attempt.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !d.isTrustedProxy(ip) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if client := strings.TrimSpace(first); net.ParseIP(client) != nil {
			return client
		}
		d.invalidIP.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
		d.invalidIP.Add(1)
	}
	return direct
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// AddTrustedProxy adds a trusted proxy network. Call it before serving.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Middleware logs flagged requests with their reason and passes every
// request through. Blocking is left to the rate limiter.
func (d *Detector) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := d.Inspect(r); reason != "" {
				logger.WarnContext(r.Context(), "Suspicious request detected",
					"reason", string(reason),
					applog.FieldClientIP, d.ExtractClientIP(r),
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path,
					applog.FieldUserAgent, r.UserAgent())
			}
			next.ServeHTTP(w, r)
		})
	}
}
