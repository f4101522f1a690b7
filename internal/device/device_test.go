package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DeviceSuite struct {
	suite.Suite
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) TestParse() {
	s.Run("empty user agent has no capabilities", func() {
		caps := Parse("")
		s.False(caps.WebAuthn)
		s.Empty(caps.Browser)
	})

	s.Run("chrome on desktop supports webauthn", func() {
		ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		caps := Parse(ua)
		s.Equal("Chrome", caps.Browser)
		s.True(caps.WebAuthn)
		s.False(caps.Mobile)
	})

	s.Run("safari on iphone is mobile and supports webauthn", func() {
		ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
		caps := Parse(ua)
		s.True(caps.Mobile)
		s.True(caps.WebAuthn)
	})

	s.Run("crawler never gets the biometric path", func() {
		ua := "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
		caps := Parse(ua)
		s.True(caps.Bot)
		s.False(caps.WebAuthn)
	})

	s.Run("unknown browser does not support webauthn", func() {
		caps := Parse("SomethingElse/1.0")
		s.False(caps.WebAuthn)
	})
}

func (s *DeviceSuite) TestDisplayName() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", DisplayName(""))
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		result := DisplayName(ua)
		s.Contains(result, "Chrome")
		s.Contains(result, "on")
	})

	s.Run("result has no surrounding whitespace", func() {
		ua := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		result := DisplayName(ua)
		s.Equal(result, strings.TrimSpace(result))
	})
}
