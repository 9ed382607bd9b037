package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ErrAuthExpired reports that the ERP session is no longer authenticated.
// It is fatal for a pairing run: remaining tasks stay unprocessed and the
// run report is flushed.
var ErrAuthExpired = errors.New("erp authentication expired")

// ErrNoAuthState reports a missing auth state file.
var ErrNoAuthState = errors.New("no saved auth state")

// AuthState is a persisted login: cookies plus origin storage.
type AuthState struct {
	SavedAt        time.Time                   `json:"saved_at"`
	Cookies        []*proto.NetworkCookieParam `json:"cookies"`
	LocalStorage   map[string]string           `json:"local_storage,omitempty"`
	SessionStorage map[string]string           `json:"session_storage,omitempty"`
}

// LoadAuthState reads a saved auth state. A missing file yields
// ErrNoAuthState so callers can tell "never logged in" from a broken file.
func LoadAuthState(path string) (*AuthState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoAuthState
		}
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}
	var state AuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse auth state %s: %w", path, err)
	}
	return &state, nil
}

// SaveAuthState writes the state with owner-only permissions.
func SaveAuthState(path string, state *AuthState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	return nil
}

// SnapshotAuth captures the live login state from the working page.
func (s *Session) SnapshotAuth() (*AuthState, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	res, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	params := make([]*proto.NetworkCookieParam, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}

	return &AuthState{
		SavedAt:        time.Now(),
		Cookies:        params,
		LocalStorage:   snapshotStorage(page, "localStorage"),
		SessionStorage: snapshotStorage(page, "sessionStorage"),
	}, nil
}

// RestoreAuth applies a saved login to the session: cookies first, then
// origin storage once the page is on the target origin.
func (s *Session) RestoreAuth(ctx context.Context, state *AuthState, baseURL string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	if len(state.Cookies) > 0 {
		if err := page.SetCookies(state.Cookies); err != nil {
			return fmt.Errorf("failed to restore cookies: %w", err)
		}
	}
	if err := s.Navigate(ctx, baseURL); err != nil {
		return err
	}
	restoreStorage(page.Context(ctx), state.LocalStorage, state.SessionStorage)
	return nil
}

// EnsureAuthenticated navigates to target and verifies the session is still
// logged in. Returns ErrAuthExpired when the ERP bounced to a login page.
func (s *Session) EnsureAuthenticated(ctx context.Context, target, domain string) error {
	if err := s.Navigate(ctx, target); err != nil {
		return err
	}
	_ = s.WaitStable(ctx, time.Second)
	current, err := s.CurrentURL()
	if err != nil {
		return err
	}
	if !IsAuthenticatedURL(domain, current) {
		return fmt.Errorf("%w: landed on %s", ErrAuthExpired, current)
	}
	return nil
}

// WaitForLogin polls the page location until the operator finishes logging
// in by hand, or the timeout passes.
func (s *Session) WaitForLogin(ctx context.Context, domain string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		current, err := s.CurrentURL()
		if err == nil && IsAuthenticatedURL(domain, current) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for login after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsAuthenticatedURL reports whether a URL looks like a logged-in ERP page.
// The check is structural: the expected domain, a recognized post-login path
// segment, and no login or passport markers.
func IsAuthenticatedURL(domain, rawURL string) bool {
	u := strings.ToLower(rawURL)
	if domain != "" && !strings.Contains(u, strings.ToLower(domain)) {
		return false
	}
	if strings.Contains(u, "login") || strings.Contains(u, "passport") {
		return false
	}
	return strings.Contains(u, "/web/") || strings.Contains(u, "/home.htm")
}

// Domain extracts the bare host from a base URL for authentication checks.
func Domain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func snapshotStorage(page *rod.Page, store string) map[string]string {
	js := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}

	out := map[string]string{}
	if err := json.Unmarshal([]byte(res.Value.String()), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func restoreStorage(page *rod.Page, local, session map[string]string) {
	if len(local) == 0 && len(session) == 0 {
		return
	}
	localJSON, _ := json.Marshal(local)
	sessionJSON, _ := json.Marshal(session)

	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `(local, session) => {
			try {
				Object.entries(JSON.parse(local || "{}")).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				Object.entries(JSON.parse(session || "{}")).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}`,
		JSArgs:       []interface{}{string(localJSON), string(sessionJSON)},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}
