// Authenticate against LinkedIn once per run
// Cookie injection preferred, credential login as fallback
// Hand read-only signing capability to the rest of the engine

package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"github.com/lonehog/linkedinJobScrapper/internal/config"
)

const (
	defaultBaseURL  = "https://www.linkedin.com"
	probePath       = "/feed/"
	loginPagePath   = "/login"
	loginSubmitPath = "/checkpoint/lg/login-submit"
)

// Manager establishes authenticated sessions. It owns the only HTTP client
// that talks to the login endpoints.
type Manager struct {
	cfg     *config.Config
	client  *http.Client
	baseURL string
}

// Option overrides Manager internals, used by tests to point at a local
// server.
type Option func(*Manager)

func WithBaseURL(u string) Option {
	return func(m *Manager) { m.baseURL = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// NewManager constructs a Manager. The client never follows redirects so
// that login-wall redirects stay observable.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session is the authenticated state: a cookie set plus expiry detection.
// It is safe for concurrent use; Refresh holds the write lock so concurrent
// detail fetches never race a re-authentication.
type Session struct {
	mu      sync.RWMutex
	cookies map[string]string
	mgr     *Manager
}

// Authenticate establishes a session. Cookie injection is tried first when
// li_at is present, then credential login. Both failing is fatal.
func (m *Manager) Authenticate(ctx context.Context) (*Session, error) {
	if m.cfg.HasCookieAuth() {
		log.Info("🍪 Trying cookie-based authentication")
		s, err := m.authenticateWithCookies(ctx)
		if err == nil {
			log.Info("✅ Cookie authentication succeeded")
			return s, nil
		}
		if IsChallenge(err) {
			return nil, err
		}
		log.Warnf("Cookie authentication failed: %v", err)
	}

	if m.cfg.HasCredentialAuth() {
		log.Info("🔐 Trying credential login")
		s, err := m.login(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("✅ Credential login succeeded")
		return s, nil
	}

	return nil, &AuthError{
		Reason: ReasonInvalidCredentials,
		Err:    fmt.Errorf("no usable auth method: set LINKEDIN_LI_AT or LINKEDIN_EMAIL/LINKEDIN_PASSWORD"),
	}
}

func (m *Manager) authenticateWithCookies(ctx context.Context) (*Session, error) {
	s := &Session{cookies: cloneCookies(m.cfg.Cookies), mgr: m}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+probePath, nil)
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	s.Sign(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	defer resp.Body.Close()

	if isChallengeResponse(resp) {
		return nil, &AuthError{Reason: ReasonChallengeRequired,
			Err: fmt.Errorf("probe hit anti-bot challenge (status %d)", resp.StatusCode)}
	}
	if s.IsExpired(resp) {
		return nil, &AuthError{Reason: ReasonInvalidCredentials,
			Err: fmt.Errorf("probe rejected stored cookies (status %d)", resp.StatusCode)}
	}
	return s, nil
}

// login performs the credential flow: fetch the login page, lift the CSRF
// token, post the form, and harvest li_at from the response cookies.
func (m *Manager) login(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+loginPagePath, nil)
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	for k, vs := range RandomHeader() {
		req.Header[k] = vs
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	csrf, err := extractLoginCSRF(string(body))
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}

	pageCookies := map[string]string{}
	for _, c := range resp.Cookies() {
		pageCookies[c.Name] = c.Value
	}

	form := url.Values{}
	form.Set("session_key", m.cfg.Email)
	form.Set("session_password", m.cfg.Password)
	form.Set("loginCsrfParam", csrf)

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+loginSubmitPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	for k, vs := range RandomHeader() {
		postReq.Header[k] = vs
	}
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for name, val := range pageCookies {
		postReq.AddCookie(&http.Cookie{Name: name, Value: val})
	}

	postResp, err := m.client.Do(postReq)
	if err != nil {
		return nil, &AuthError{Reason: ReasonNetwork, Err: err}
	}
	defer postResp.Body.Close()

	if isChallengeResponse(postResp) {
		return nil, &AuthError{Reason: ReasonChallengeRequired,
			Err: fmt.Errorf("login hit a checkpoint challenge")}
	}

	cookies := map[string]string{}
	for name, val := range pageCookies {
		cookies[name] = val
	}
	for _, c := range postResp.Cookies() {
		cookies[c.Name] = c.Value
	}
	if cookies["li_at"] == "" {
		return nil, &AuthError{Reason: ReasonInvalidCredentials,
			Err: fmt.Errorf("login response carried no session token (status %d)", postResp.StatusCode)}
	}

	return &Session{cookies: cookies, mgr: m}, nil
}

// Sign attaches the session cookies and a freshly rotated header set.
func (s *Session) Sign(req *http.Request) {
	for k, vs := range RandomHeader() {
		req.Header[k] = vs
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, val := range s.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: val})
	}
	if js := s.cookies["JSESSIONID"]; js != "" {
		req.Header.Set("Csrf-Token", strings.Trim(js, `"`))
	}
}

// IsExpired detects an authentication-expired response: an explicit auth
// failure status or a redirect back to a login wall.
func (s *Session) IsExpired(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		return strings.Contains(loc, "/login") ||
			strings.Contains(loc, "/authwall") ||
			strings.Contains(loc, "/uas/login")
	}
	return false
}

// Refresh re-authenticates in place under the write lock. Cookie-injected
// sessions cannot be refreshed without new cookies, so a credential login is
// required; otherwise the expiry is fatal for the run.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mgr.cfg.HasCredentialAuth() {
		return &AuthError{Reason: ReasonExpiredMidRun,
			Err: fmt.Errorf("session expired and no credentials available for re-login")}
	}

	fresh, err := s.mgr.login(ctx)
	if err != nil {
		return &AuthError{Reason: ReasonExpiredMidRun, Err: err}
	}
	s.cookies = fresh.cookies
	return nil
}

func extractLoginCSRF(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}
	csrf, ok := doc.Find(`input[name="loginCsrfParam"]`).First().Attr("value")
	if !ok || csrf == "" {
		return "", fmt.Errorf("login page carried no loginCsrfParam")
	}
	return csrf, nil
}

// isChallengeResponse spots the anti-bot interstitial: LinkedIn's 999
// status, or a redirect into the checkpoint challenge flow.
func isChallengeResponse(resp *http.Response) bool {
	if resp.StatusCode == 999 {
		return true
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return strings.Contains(resp.Header.Get("Location"), "/checkpoint/challenge")
	}
	return false
}

func cloneCookies(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
