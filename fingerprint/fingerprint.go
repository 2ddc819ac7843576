// Package fingerprint turns request headers into device and network
// descriptors. The derived fingerprint is an identification aid for
// deduplication and analytics, not a security control.
package fingerprint

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"health-screening/models"
)

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"

	IPv4    = "IPv4"
	IPv6    = "IPv6"
	Unknown = "unknown"

	fingerprintLength = 32
)

type versionRule struct {
	name    string
	pattern *regexp.Regexp
}

// Order matters: Edge and Opera carry "Chrome" and Chrome carries "Safari".
var browserRules = []versionRule{
	{"Edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`(?:OPR|Opera)/([\d.]+)`)},
	{"Samsung Internet", regexp.MustCompile(`SamsungBrowser/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`(?:Firefox|FxiOS)/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`(?:Chrome|CriOS)/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`Version/([\d.]+).*Safari/`)},
	{"Internet Explorer", regexp.MustCompile(`(?:MSIE |Trident/.*rv:)([\d.]+)`)},
}

var osRules = []versionRule{
	{"iOS", regexp.MustCompile(`(?:iPhone|iPad|iPod).*?OS ([\d_]+)`)},
	{"Android", regexp.MustCompile(`Android ([\d.]+)`)},
	{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"macOS", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
	{"Chrome OS", regexp.MustCompile(`CrOS \S+ ([\d.]+)`)},
	{"Linux", regexp.MustCompile(`Linux()`)},
}

var androidModel = regexp.MustCompile(`Android [\d.]+; (?:[a-zA-Z-]+; )?([^;)]+?)(?: Build/[^;)]*)?\)`)

var automationKeywords = []string{"bot", "crawler", "spider", "headless", "phantom"}

// ParseUserAgent extracts browser, OS and device from a User-Agent string
func ParseUserAgent(ua string) (models.Browser, models.OS, models.Device) {
	browser := models.Browser{Name: Unknown}
	for _, rule := range browserRules {
		if m := rule.pattern.FindStringSubmatch(ua); m != nil {
			browser = models.Browser{Name: rule.name, Version: m[1]}
			break
		}
	}

	os := models.OS{Name: Unknown}
	for _, rule := range osRules {
		if m := rule.pattern.FindStringSubmatch(ua); m != nil {
			os = models.OS{Name: rule.name, Version: strings.ReplaceAll(m[1], "_", ".")}
			break
		}
	}

	return browser, os, parseDevice(ua)
}

// Tablet tokens are checked first since iPad user agents also carry "Mobile".
func parseDevice(ua string) models.Device {
	switch {
	case strings.Contains(ua, "iPad"):
		return models.Device{Type: DeviceTablet, Brand: "Apple", Model: "iPad"}
	case strings.Contains(ua, "Tablet"):
		return models.Device{Type: DeviceTablet}
	case strings.Contains(ua, "iPhone"):
		return models.Device{Type: DeviceMobile, Brand: "Apple", Model: "iPhone"}
	case strings.Contains(ua, "Android"):
		d := models.Device{Type: DeviceMobile, Brand: androidBrand(ua)}
		if m := androidModel.FindStringSubmatch(ua); m != nil {
			d.Model = strings.TrimSpace(m[1])
		}
		return d
	case strings.Contains(ua, "Mobile"):
		return models.Device{Type: DeviceMobile}
	}
	return models.Device{Type: DeviceDesktop}
}

func androidBrand(ua string) string {
	switch {
	case strings.Contains(ua, "SM-"), strings.Contains(ua, "Samsung"):
		return "Samsung"
	case strings.Contains(ua, "Pixel"):
		return "Google"
	case strings.Contains(ua, "Moto"):
		return "Motorola"
	}
	return ""
}

// ClientIP picks the client address by header priority, falling back to the
// socket address and finally "unknown".
func ClientIP(h http.Header, remoteAddr string) string {
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
			return host
		}
		return remoteAddr
	}
	return Unknown
}

// IPType classifies an address by the presence of a colon
func IPType(ip string) string {
	if ip == Unknown || ip == "" {
		return Unknown
	}
	if strings.Contains(ip, ":") {
		return IPv6
	}
	return IPv4
}

// Extract builds the device and network descriptors for one request
func Extract(h http.Header, remoteAddr string, client models.ClientInfo) (models.DeviceInfo, models.NetworkInfo) {
	ua := h.Get("User-Agent")
	browser, os, device := ParseUserAgent(ua)
	ip := ClientIP(h, remoteAddr)

	referrer := h.Get("Referer")
	if referrer == "" {
		referrer = h.Get("Referrer")
	}

	return models.DeviceInfo{
			UserAgent:  ua,
			Browser:    browser,
			OS:         os,
			Device:     device,
			ScreenSize: client.ScreenSize,
			Timezone:   client.Timezone,
			Language:   firstNonEmpty(client.Language, h.Get("Accept-Language")),
		}, models.NetworkInfo{
			IP:           ip,
			IPType:       IPType(ip),
			Referrer:     referrer,
			ForwardedFor: h.Get("X-Forwarded-For"),
		}
}

// Generate derives a 32 character fingerprint from the descriptors, the form
// payload and the current time. Two calls are not expected to agree.
func Generate(device models.DeviceInfo, network models.NetworkInfo, form map[string]string, now time.Time) string {
	parts := []string{
		network.IP,
		device.UserAgent,
		device.Browser.Name + device.Browser.Version,
		device.OS.Name + device.OS.Version,
		device.Device.Type,
		device.ScreenSize,
		device.Timezone,
		fmt.Sprintf("%d", now.UnixMilli()),
		fmt.Sprintf("%x", HashForm(form)),
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, "|")))
	if len(encoded) > fingerprintLength {
		encoded = encoded[:fingerprintLength]
	}
	return encoded
}

// HashForm is a simple rolling hash over the sorted form fields
func HashForm(form map[string]string) uint32 {
	keys := lo.Keys(form)
	sort.Strings(keys)

	var h uint32
	for _, k := range keys {
		for _, c := range k + "=" + form[k] + "&" {
			h = h*31 + uint32(c)
		}
	}
	return h
}

// Fraud signal tags
const (
	SignalMissingUserAgent    = "missing_user_agent"
	SignalShortUserAgent      = "short_user_agent"
	SignalAutomationUserAgent = "automation_user_agent"
	SignalProxyChain          = "proxy_chain"
	SignalPrivateIP           = "private_ip"
)

// FraudSignals tags suspicious request traits. Tags are independent and never
// block a submission.
func FraudSignals(h http.Header, ip string) []string {
	var signals []string

	ua := strings.TrimSpace(h.Get("User-Agent"))
	switch {
	case ua == "":
		signals = append(signals, SignalMissingUserAgent)
	case len(ua) < 20:
		signals = append(signals, SignalShortUserAgent)
	}

	lower := strings.ToLower(ua)
	for _, kw := range automationKeywords {
		if strings.Contains(lower, kw) {
			signals = append(signals, SignalAutomationUserAgent)
			break
		}
	}

	if xff := h.Get("X-Forwarded-For"); xff != "" && len(strings.Split(xff, ",")) > 2 {
		signals = append(signals, SignalProxyChain)
	}

	if parsed := net.ParseIP(ip); parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback()) {
		signals = append(signals, SignalPrivateIP)
	}

	return signals
}

// NewSessionID returns a random hex session identifier
func NewSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
