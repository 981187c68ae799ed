package hnap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/hnap/hnaptest"
)

func newTestClient() *Client {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	return NewClient(cfg, zap.NewNop())
}

func newFakeModem(t *testing.T) *hnaptest.Server {
	t.Helper()
	srv := hnaptest.NewServer(t, "admin", "password")
	srv.Handle("GetHomeConnection", map[string]any{"MotoHomeOnline": "Connected"})
	srv.Handle("GetHomeAddress", map[string]any{"MotoHomeMacAddress": "00:11:22:33:44:55"})
	return srv
}

func TestClient_LoginDerivesSecrets(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()

	if err := c.Login(context.Background(), s); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !s.Valid() {
		t.Fatal("session not valid after login")
	}
	if s.privateKey != srv.ExpectedPrivateKey() {
		t.Errorf("privateKey = %q, want %q", s.privateKey, srv.ExpectedPrivateKey())
	}
	if s.cookieID != srv.Cookie {
		t.Errorf("cookieID = %q, want %q", s.cookieID, srv.Cookie)
	}
	if srv.Logins() != 1 {
		t.Errorf("server logins = %d, want 1", srv.Logins())
	}

	reqs := srv.Requests()
	if len(reqs) != 2 || reqs[0].Action != "request" || reqs[1].Action != "login" {
		t.Fatalf("requests = %+v, want request then login", reqs)
	}
	if reqs[0].UID != "" {
		t.Errorf("challenge request sent uid cookie %q", reqs[0].UID)
	}
	if reqs[1].SOAPAction != `"http://purenetworks.com/HNAP1/Login"` {
		t.Errorf("SOAPAction = %s", reqs[1].SOAPAction)
	}
}

func TestClient_ExecuteLogsInOnDemand(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()

	resp, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.String("MotoHomeOnline") != "Connected" {
		t.Errorf("response = %v", resp)
	}

	if _, err := c.Execute(context.Background(), s, NewCommand("GetHomeAddress"), nil); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if srv.Logins() != 1 {
		t.Errorf("logins = %d, want 1 (session reused)", srv.Logins())
	}

	got := strings.Join(srv.Operations(), ",")
	if want := "Login,Login,GetHomeConnection,GetHomeAddress"; got != want {
		t.Errorf("operations = %s, want %s", got, want)
	}
}

func TestClient_ExecuteBatch(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()

	resp, err := c.Execute(context.Background(), s, Batch(NewCommand("GetHomeConnection"), NewCommand("GetHomeAddress")), nil)
	if err != nil {
		t.Fatalf("Execute batch: %v", err)
	}
	if resp.Section("GetHomeAddressResponse").String("MotoHomeMacAddress") != "00:11:22:33:44:55" {
		t.Errorf("batch response = %v", resp)
	}

	_, err = c.Execute(context.Background(), s, Batch(NewCommand("GetHomeConnection"), NewCommand("GetMotoStatusLog")), nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) || !errors.Is(err, ErrMissingEnvelope) {
		t.Fatalf("err = %v, want missing sub-response", err)
	}
	if perr.Operation != "GetMotoStatusLog" {
		t.Errorf("Operation = %q, want GetMotoStatusLog", perr.Operation)
	}
}

func TestClient_LoginResultNotOK(t *testing.T) {
	srv := newFakeModem(t)
	srv.SetLoginResult("FAILED")
	s := NewSession("http", srv.Host(), "admin", "password")

	err := newTestClient().Login(context.Background(), s)
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if aerr.Step != "request" || !errors.Is(err, ErrResultNotOK) {
		t.Errorf("err = %v, want request step with result not OK", err)
	}
	if s.privateKey != "" || s.encodedPassword != "" || s.cookieID != "" || s.Valid() {
		t.Error("failed login left credentials in the session")
	}
}

func TestClient_IncompleteChallengeLeavesNoState(t *testing.T) {
	srv := newFakeModem(t)
	srv.Challenge = ""
	s := NewSession("http", srv.Host(), "admin", "password")

	err := newTestClient().Login(context.Background(), s)
	var aerr *AuthError
	if !errors.As(err, &aerr) || aerr.Step != "request" {
		t.Fatalf("err = %v, want AuthError at request step", err)
	}
	if !s.lastRequestAt.IsZero() || s.privateKey != "" || s.cookieID != "" {
		t.Errorf("session kept state: last=%v key=%q cookie=%q", s.lastRequestAt, s.privateKey, s.cookieID)
	}
	if s.Valid() || s.Expired() {
		t.Error("session should be plainly unauthenticated")
	}
}

func TestClient_LoginWrongPassword(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "wrong")

	err := newTestClient().Login(context.Background(), s)
	var aerr *AuthError
	if !errors.As(err, &aerr) || aerr.Step != "login" {
		t.Fatalf("err = %v, want AuthError at login step", err)
	}
	if s.Valid() || s.privateKey != "" {
		t.Error("failed login left credentials in the session")
	}
	if srv.Logins() != 0 {
		t.Errorf("server accepted %d logins", srv.Logins())
	}
}

func TestClient_ResultNotOK(t *testing.T) {
	srv := newFakeModem(t)
	srv.SetResult("GetHomeConnection", "ERROR")
	s := NewSession("http", srv.Host(), "admin", "password")

	_, err := newTestClient().Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.Result != "ERROR" {
		t.Fatalf("err = %v, want ProtocolError with result ERROR", err)
	}
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()
	if err := c.Login(context.Background(), s); err != nil {
		t.Fatalf("Login: %v", err)
	}

	srv.SetStatus(http.StatusInternalServerError)
	_, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if perr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", perr.StatusCode)
	}
	if !strings.Contains(err.Error(), "invalid response code 500") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClient_DroppedSessionSurfacesAsError(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()
	if _, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	srv.DropSession()
	_, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 ProtocolError", err)
	}

	// The caller invalidates after a failure; the next call logs in again.
	s.Invalidate()
	if _, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute after invalidate: %v", err)
	}
	if srv.Logins() != 2 {
		t.Errorf("logins = %d, want 2", srv.Logins())
	}
}

func TestClient_ExpiredSessionLogsInAgain(t *testing.T) {
	srv := newFakeModem(t)
	clock := &fakeClock{t: time.Now()}
	s := NewSession("http", srv.Host(), "admin", "password", WithClock(clock.Now))
	c := newTestClient()

	if _, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	clock.Advance(DefaultMaxInactive + time.Second)
	if s.Valid() {
		t.Fatal("session still valid after inactivity window")
	}
	if _, err := c.Execute(context.Background(), s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute after expiry: %v", err)
	}
	if srv.Logins() != 2 {
		t.Errorf("logins = %d, want 2", srv.Logins())
	}
}

func TestClient_KeepsDeviceCookies(t *testing.T) {
	srv := newFakeModem(t)
	srv.SetCookie("SessionID", "s-1")
	srv.SetCookie("uid", "stale")
	s := NewSession("http", srv.Host(), "admin", "password")
	c := newTestClient()
	ctx := context.Background()

	if _, err := c.Execute(ctx, s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	reqs := srv.Requests()
	if len(reqs) != 3 {
		t.Fatalf("requests = %d, want login request, login, command", len(reqs))
	}
	if reqs[0].Cookies["SessionID"] != nil {
		t.Error("first request carried a cookie the device had not set yet")
	}
	if got := reqs[1].Cookies["SessionID"]; len(got) != 1 || got[0] != "s-1" {
		t.Errorf("login SessionID cookies = %v, want [s-1]", got)
	}
	if got := reqs[2].Cookies["uid"]; len(got) != 1 || got[0] != srv.Cookie {
		t.Errorf("command uid cookies = %v, want only the login cookie %q", got, srv.Cookie)
	}

	s.Invalidate()
	if _, err := c.Execute(ctx, s, NewCommand("GetHomeConnection"), nil); err != nil {
		t.Fatalf("Execute after Invalidate: %v", err)
	}
	reqs = srv.Requests()
	if first := reqs[3]; first.Action != "request" || first.Cookies != nil {
		t.Errorf("first request after Invalidate = %+v, want a cookieless login request", first)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := newFakeModem(t)
	host := srv.Host()
	srv.Close()

	s := NewSession("http", host, "admin", "password", WithTimeouts(200*time.Millisecond, 200*time.Millisecond))
	err := newTestClient().Login(context.Background(), s)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Errorf("err = %v, want AuthError wrapping the transport failure", err)
	}
}

func TestClient_Capabilities(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")

	doc, err := newTestClient().Capabilities(context.Background(), s)
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if !strings.Contains(doc, "SOAPActions") {
		t.Errorf("capabilities = %q", doc)
	}
	reqs := srv.Requests()
	if last := reqs[len(reqs)-1]; last.Method != http.MethodGet {
		t.Errorf("last request method = %s, want GET", last.Method)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := newFakeModem(t)
	s := NewSession("http", srv.Host(), "admin", "password")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestClient().Login(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
