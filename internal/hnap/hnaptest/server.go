// Package hnaptest provides an in-process fake HNAP modem for tests.
package hnaptest

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // G501: HNAP mandates HMAC-MD5
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const namespace = "http://purenetworks.com/HNAP1/"

// Request records one call received by the fake modem.
type Request struct {
	Method     string
	Operation  string
	Action     string // Login action, empty otherwise
	HNAPAuth   string
	SOAPAction string
	UID        string
	Cookies    map[string][]string // every cookie sent, by name
}

// Server is a fake modem that implements the HNAP login handshake, checks
// request signatures and serves canned responses.
type Server struct {
	*httptest.Server

	Username  string
	Password  string
	PublicKey string
	Challenge string
	Cookie    string

	mu           sync.Mutex
	responses    map[string]map[string]any
	results      map[string]string
	loginResult  string
	status       int
	capabilities string
	privateKey   string
	requests     []Request
	logins       int
	setCookies   []*http.Cookie
}

// NewServer starts a fake modem accepting username/password. It is closed
// automatically when the test ends.
func NewServer(t testing.TB, username, password string) *Server {
	t.Helper()
	s := &Server{
		Username:     username,
		Password:     password,
		PublicKey:    "A1B2C3D4E5F6",
		Challenge:    "0F1E2D3C4B5A",
		Cookie:       "1234567890",
		responses:    make(map[string]map[string]any),
		results:      make(map[string]string),
		loginResult:  "OK",
		capabilities: `<?xml version="1.0"?><SOAPActions><Action>GetHomeConnection</Action></SOAPActions>`,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Host returns host:port of the fake modem.
func (s *Server) Host() string {
	u, _ := url.Parse(s.URL)
	return u.Host
}

// Handle sets the response object returned for operation. The
// {operation}Result field defaults to "OK".
func (s *Server) Handle(operation string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[operation] = fields
}

// SetResult overrides the {operation}Result value returned for operation.
func (s *Server) SetResult(operation, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[operation] = result
}

// SetLoginResult sets the LoginResult returned by the challenge step.
func (s *Server) SetLoginResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginResult = result
}

// SetStatus forces every response to carry code. Zero restores normal
// behavior.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// SetCookie makes every later response set the cookie name=value.
func (s *Server) SetCookie(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCookies = append(s.setCookies, &http.Cookie{Name: name, Value: value, Path: "/"})
}

// DropSession forgets the current login, as a modem does after a reboot.
func (s *Server) DropSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privateKey = ""
}

// Logins returns how many login sequences completed successfully.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Requests returns a copy of the received requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Operations returns the operation names of the received requests.
func (s *Server) Operations() []string {
	reqs := s.Requests()
	ops := make([]string, len(reqs))
	for i, r := range reqs {
		ops[i] = r.Operation
	}
	return ops
}

// ExpectedPrivateKey returns the key a correct client derives.
func (s *Server) ExpectedPrivateKey() string {
	return hmacUpper(s.PublicKey+s.Password, s.Challenge)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Request{
		Method:     r.Method,
		HNAPAuth:   r.Header.Get("HNAP_AUTH"),
		SOAPAction: r.Header.Get("SOAPAction"),
	}
	if ck, err := r.Cookie("uid"); err == nil {
		rec.UID = ck.Value
	}
	if cks := r.Cookies(); len(cks) > 0 {
		rec.Cookies = make(map[string][]string, len(cks))
		for _, ck := range cks {
			rec.Cookies[ck.Name] = append(rec.Cookies[ck.Name], ck.Value)
		}
	}
	for _, ck := range s.setCookies {
		http.SetCookie(w, ck)
	}

	if s.status != 0 {
		s.requests = append(s.requests, rec)
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":"forced status"}`))
		return
	}

	if r.Method == http.MethodGet {
		s.requests = append(s.requests, rec)
		if !s.signedBySession(rec, "") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(s.capabilities))
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
		s.requests = append(s.requests, rec)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var operation string
	var payload json.RawMessage
	for k, v := range body {
		operation, payload = k, v
	}
	rec.Operation = operation

	if operation == "Login" {
		s.handleLogin(w, rec, payload)
		return
	}
	s.requests = append(s.requests, rec)

	if !s.signedBySession(rec, operation) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	var out map[string]any
	if operation == "GetMultipleHNAPs" {
		var subs map[string]any
		if err := json.Unmarshal(payload, &subs); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		inner := map[string]any{"GetMultipleHNAPsResult": s.result("GetMultipleHNAPs")}
		for sub := range subs {
			if resp, ok := s.response(sub); ok {
				inner[sub+"Response"] = resp
			}
		}
		out = map[string]any{"GetMultipleHNAPsResponse": inner}
	} else {
		resp, ok := s.response(operation)
		if !ok {
			resp = map[string]any{operation + "Result": "ERROR"}
		}
		out = map[string]any{operation + "Response": resp}
	}
	writeJSON(w, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, rec Request, payload json.RawMessage) {
	var login map[string]string
	_ = json.Unmarshal(payload, &login)
	rec.Action = login["Action"]
	s.requests = append(s.requests, rec)

	if login["Username"] != s.Username {
		writeJSON(w, map[string]any{"LoginResponse": map[string]any{"LoginResult": "FAILED"}})
		return
	}

	switch login["Action"] {
	case "request":
		if !validSignature(fallbackKey, "Login", rec.HNAPAuth) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"LoginResponse": map[string]any{
			"Challenge":   s.Challenge,
			"Cookie":      s.Cookie,
			"PublicKey":   s.PublicKey,
			"LoginResult": s.loginResult,
		}})
	case "login":
		key := s.ExpectedPrivateKey()
		result := "OK"
		if login["LoginPassword"] != hmacUpper(key, s.Challenge) ||
			rec.UID != s.Cookie ||
			!validSignature(key, "Login", rec.HNAPAuth) {
			result = "FAILED"
		}
		if result == "OK" {
			s.privateKey = key
			s.logins++
		}
		writeJSON(w, map[string]any{"LoginResponse": map[string]any{"LoginResult": result}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (s *Server) signedBySession(rec Request, operation string) bool {
	if s.privateKey == "" || rec.UID != s.Cookie {
		return false
	}
	if operation != "" && rec.SOAPAction != `"`+namespace+operation+`"` {
		return false
	}
	return validSignature(s.privateKey, operation, rec.HNAPAuth)
}

func (s *Server) response(operation string) (map[string]any, bool) {
	fields, ok := s.responses[operation]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[operation+"Result"] = s.result(operation)
	return out, true
}

func (s *Server) result(operation string) string {
	if r, ok := s.results[operation]; ok {
		return r
	}
	return "OK"
}

const fallbackKey = "withoutloginkey"

func validSignature(key, operation, header string) bool {
	digest, millis, ok := strings.Cut(header, " ")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(digest), []byte(hmacUpper(key, millis+`"`+namespace+operation+`"`)))
}

func hmacUpper(key, msg string) string {
	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
