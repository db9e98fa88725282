// Package device identifies the client device behind a request: the client
// generated device id, a fingerprint hash and the browser/OS labels shown in
// the session and trusted device lists.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Descriptor is what the client reports about itself when asking to trust a device.
type Descriptor struct {
	DeviceID   string `json:"deviceId" validate:"required,max=128"`
	DeviceName string `json:"deviceName,omitempty" validate:"max=255"`
	DeviceType string `json:"deviceType,omitempty" validate:"max=64"`
	UserAgent  string `json:"userAgent,omitempty" validate:"max=1024"`
}

// Traits are the signals hashed into a fingerprint. Zero values are hashed as empty.
type Traits struct {
	UserAgent           string
	Language            string
	ColorDepth          int
	ScreenWidth         int
	ScreenHeight        int
	TimezoneOffset      int
	HardwareConcurrency int
	Platform            string
}

// Fingerprint is the hex sha256 of the traits in a fixed order. It is a secondary
// signal: the device id, not the fingerprint, keys trust and session rows.
func Fingerprint(t Traits) string {
	parts := []string{
		t.UserAgent,
		t.Language,
		itoa(t.ColorDepth),
		itoa(t.ScreenWidth) + "x" + itoa(t.ScreenHeight),
		strconv.Itoa(t.TimezoneOffset),
		itoa(t.HardwareConcurrency),
		t.Platform,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// IdentityProvider resolves the device identity for the current caller.
type IdentityProvider interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
	CurrentFingerprint(ctx context.Context) (string, error)
}

// StaticIdentity is a fixed identity, used by background callers and tests.
type StaticIdentity struct {
	DeviceID    string
	Fingerprint string
}

func (s StaticIdentity) GetOrCreateDeviceID(context.Context) (string, error) { return s.DeviceID, nil }
func (s StaticIdentity) CurrentFingerprint(context.Context) (string, error)  { return s.Fingerprint, nil }

// Labels are the human readable browser and OS names derived from a user agent.
type Labels struct {
	Browser string
	OS      string
	Type    string
}

// Parse derives display labels from a user agent string. Order matters: Edge and
// Opera include "Chrome", Chrome includes "Safari".
func Parse(ua string) Labels {
	l := Labels{Browser: "Unknown", OS: "Unknown", Type: "desktop"}
	if ua == "" {
		return l
	}
	switch {
	case strings.Contains(ua, "Edg/"):
		l.Browser = "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		l.Browser = "Opera"
	case strings.Contains(ua, "Firefox/"):
		l.Browser = "Firefox"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		l.Browser = "Chrome"
	case strings.Contains(ua, "Safari/"):
		l.Browser = "Safari"
	}
	switch {
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		l.OS = "iOS"
	case strings.Contains(ua, "Android"):
		l.OS = "Android"
	case strings.Contains(ua, "Windows"):
		l.OS = "Windows"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		l.OS = "macOS"
	case strings.Contains(ua, "Linux"):
		l.OS = "Linux"
	}
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		l.Type = "tablet"
	case strings.Contains(ua, "Mobi"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		l.Type = "mobile"
	}
	return l
}

// Name builds a default device name such as "Chrome on macOS".
func (l Labels) Name() string {
	return l.Browser + " on " + l.OS
}
