// Package device derives device capabilities from the caller's user-agent.
// The identify machine uses this to decide whether the biometric challenge
// path may be offered at all; it is one of the two inputs of that gate (the
// other is the server-declared challenge payload).
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Capabilities is what the flow needs to know about the caller's device.
type Capabilities struct {
	Browser        string
	BrowserVersion string
	OS             string
	Mobile         bool
	Bot            bool
	WebAuthn       bool
}

// webauthnBrowsers lists browser families with platform authenticator
// support. Version gating is deliberately coarse; the server payload is the
// authoritative half of the biometric gate.
var webauthnBrowsers = map[string]bool{
	"Chrome":   true,
	"Chromium": true,
	"Firefox":  true,
	"Safari":   true,
	"Edge":     true,
}

// Parse extracts capabilities from a raw user-agent string. An empty or
// unparseable string yields a zero Capabilities with WebAuthn false.
func Parse(rawUA string) Capabilities {
	if strings.TrimSpace(rawUA) == "" {
		return Capabilities{}
	}

	ua := useragent.New(rawUA)
	name, version := ua.Browser()

	caps := Capabilities{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
	caps.WebAuthn = !caps.Bot && webauthnBrowsers[name]
	return caps
}

// DisplayName renders a short human-readable device description for logs
// and audit events.
func DisplayName(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OSInfo().Name
	if name == "" {
		name = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(name + " on " + os)
}
