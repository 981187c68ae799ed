package hnap

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // G501: HNAP mandates HMAC-MD5
	"crypto/tls"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults for a device session.
const (
	DefaultMaxInactive    = 600 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

// fallbackKey signs requests made before a private key exists.
const fallbackKey = "withoutloginkey"

// Session holds the per-login state of one device. It is owned by a single
// device and must not be used from more than one goroutine at a time.
type Session struct {
	scheme   string
	host     string
	username string
	password string

	privateKey      string
	encodedPassword string
	cookieID        string
	lastRequestAt   time.Time

	maxInactive    time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	now            func() time.Time

	httpClient *http.Client
	jar        http.CookieJar
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithMaxInactive sets how long a session survives without requests.
func WithMaxInactive(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.maxInactive = d
		}
	}
}

// WithTimeouts sets the connect and read timeouts of the session's HTTP
// client.
func WithTimeouts(connect, read time.Duration) SessionOption {
	return func(s *Session) {
		if connect > 0 {
			s.connectTimeout = connect
		}
		if read > 0 {
			s.readTimeout = read
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates an unauthenticated session for the device at host.
func NewSession(scheme, host, username, password string, opts ...SessionOption) *Session {
	s := &Session{
		scheme:         scheme,
		host:           host,
		username:       username,
		password:       password,
		maxInactive:    DefaultMaxInactive,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpClient, s.jar = s.newHTTPClient(), newJar()
	return s
}

// Host returns the device host (with optional port).
func (s *Session) Host() string { return s.host }

// Username returns the login name.
func (s *Session) Username() string { return s.username }

// URL returns the HNAP endpoint of the device.
func (s *Session) URL() string {
	return s.scheme + "://" + s.host + "/HNAP1/"
}

// Valid reports whether the session holds credentials that the device
// still accepts.
func (s *Session) Valid() bool {
	if s.privateKey == "" || s.cookieID == "" || s.encodedPassword == "" {
		return false
	}
	if s.lastRequestAt.IsZero() {
		return true
	}
	return s.now().Sub(s.lastRequestAt) < s.maxInactive
}

// Expired reports whether the session was authenticated but has been idle
// for longer than the inactivity window.
func (s *Session) Expired() bool {
	return s.privateKey != "" && !s.lastRequestAt.IsZero() &&
		s.now().Sub(s.lastRequestAt) >= s.maxInactive
}

// Invalidate drops every derived secret and replaces the HTTP client and
// cookie jar, so the next login starts from a fresh client identity.
func (s *Session) Invalidate() {
	s.clear()
	s.httpClient.CloseIdleConnections()
	s.httpClient, s.jar = s.newHTTPClient(), newJar()
}

func (s *Session) clear() {
	s.privateKey = ""
	s.encodedPassword = ""
	s.cookieID = ""
	s.lastRequestAt = time.Time{}
}

// authenticate derives the private key and encoded password from the
// login challenge.
func (s *Session) authenticate(challenge, publicKey, cookieID string) {
	s.privateKey = hmacMD5Upper([]byte(publicKey+s.password), challenge)
	s.encodedPassword = hmacMD5Upper([]byte(s.privateKey), challenge)
	s.cookieID = cookieID
}

func (s *Session) touch() {
	s.lastRequestAt = s.now()
}

// authHeader returns the HNAP_AUTH value for operation at the current time.
func (s *Session) authHeader(operation string) string {
	key := s.privateKey
	if key == "" {
		key = fallbackKey
	}
	return Sign(key, operation, s.now())
}

// cookies returns what to send to u: cookies the device set, then the
// login cookies, which replace any device cookie of the same name.
func (s *Session) cookies(u *url.URL) []*http.Cookie {
	var login []*http.Cookie
	if s.cookieID != "" {
		login = []*http.Cookie{
			{Name: "uid", Value: s.cookieID},
			{Name: "PrivateKey", Value: s.privateKey},
		}
	}

	var out []*http.Cookie
	for _, ck := range s.jar.Cookies(u) {
		if s.cookieID != "" && (ck.Name == "uid" || ck.Name == "PrivateKey") {
			continue
		}
		out = append(out, ck)
	}
	return append(out, login...)
}

// keepCookies stores the cookies a response set.
func (s *Session) keepCookies(u *url.URL, cks []*http.Cookie) {
	if len(cks) > 0 {
		s.jar.SetCookies(u, cks)
	}
}

func newJar() http.CookieJar {
	jar, _ := cookiejar.New(nil) // never fails without options
	return jar
}

func (s *Session) newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: s.connectTimeout}
	return &http.Client{
		Timeout: s.connectTimeout + s.readTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // G402: modems ship self-signed certs
			TLSHandshakeTimeout:   s.connectTimeout,
			ResponseHeaderTimeout: s.readTimeout,
		},
	}
}

// Sign computes the HNAP_AUTH header value for operation, keyed by key, at
// time at. The result is deterministic for identical inputs.
func Sign(key, operation string, at time.Time) string {
	millis := strconv.FormatInt(at.UnixMilli(), 10)
	digest := hmacMD5Upper([]byte(key), millis+`"`+Namespace+operation+`"`)
	return digest + " " + millis
}

func hmacMD5Upper(key []byte, msg string) string {
	mac := hmac.New(md5.New, key)
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
