package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds automation session settings.
type Config struct {
	// DebuggerURL attaches to an already-running Chrome when set; otherwise
	// a fresh browser is launched.
	DebuggerURL       string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          false,
		ViewportWidth:     1440,
		ViewportHeight:    900,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    10 * time.Second,
	}
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

func (c Config) elementTimeout() time.Duration {
	if c.ElementTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ElementTimeout
}

func (c Config) viewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 1440
	}
	return c.ViewportWidth
}

func (c Config) viewportHeight() int {
	if c.ViewportHeight <= 0 {
		return 900
	}
	return c.ViewportHeight
}

// Session owns one Chrome connection and the single working page the pairing
// workflow drives. Pairing runs are strictly sequential; the mutex guards the
// connection state, not concurrent page work.
type Session struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewSession creates an unstarted session.
func NewSession(cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// working page with the configured viewport.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		s.log.Warn("stale browser connection, reconnecting")
		_ = s.browser.Close()
		s.browser = nil
		s.page = nil
		s.controlURL = ""
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(s.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("failed to open page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.viewportWidth(),
		Height:            s.cfg.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		s.log.Warn("failed to set viewport", zap.Error(err))
	}

	s.browser = browser
	s.page = page
	s.controlURL = controlURL
	s.log.Info("browser session started",
		zap.Bool("headless", s.cfg.Headless),
		zap.Bool("attached", s.cfg.DebuggerURL != ""))
	return nil
}

// ControlURL returns the WebSocket debugger URL.
func (s *Session) ControlURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlURL
}

// IsConnected reports whether the browser is connected.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil
}

// Close shuts down the working page and the browser connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	s.controlURL = ""
	return err
}

func (s *Session) currentPage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, errors.New("session not started")
	}
	return s.page, nil
}

// Navigate loads a URL and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(s.cfg.navigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL() (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// Find walks the locator chain under a shared budget and returns the first
// match. A zero budget falls back to the configured element timeout.
func (s *Session) Find(ctx context.Context, budget time.Duration, chain ...Locator) (Element, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = s.cfg.elementTimeout()
	}
	el, err := s.walkChain(budget, chain, func(loc Locator, wait time.Duration) (*rod.Element, error) {
		return findOne(page.Context(ctx).Timeout(wait), loc)
	})
	if err != nil {
		return nil, err
	}
	return &pageElement{el: el.CancelTimeout(), session: s}, nil
}

// FindAll waits for the first rung that matches anything and returns every
// element that rung matches.
func (s *Session) FindAll(ctx context.Context, budget time.Duration, chain ...Locator) ([]Element, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = s.cfg.elementTimeout()
	}
	matched, err := s.walkChainAll(budget, chain, func(loc Locator, wait time.Duration) (rod.Elements, error) {
		if _, err := findOne(page.Context(ctx).Timeout(wait), loc); err != nil {
			return nil, err
		}
		return findEvery(page.Context(ctx), loc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(matched))
	for _, el := range matched {
		out = append(out, &pageElement{el: el, session: s})
	}
	return out, nil
}

// HTML returns the serialized page.
func (s *Session) HTML() (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}
	return page.HTML()
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	return page.Context(ctx).Screenshot(true, nil)
}

// WaitStable blocks until the DOM stops mutating for d.
func (s *Session) WaitStable(ctx context.Context, d time.Duration) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	return page.Context(ctx).Timeout(s.cfg.navigationTimeout()).WaitStable(d)
}

// walkChain tries each rung in order. Every rung gets an even share of the
// budget that remains when its turn comes, so early misses leave time for
// the fallbacks.
func (s *Session) walkChain(budget time.Duration, chain []Locator, try func(Locator, time.Duration) (*rod.Element, error)) (*rod.Element, error) {
	deadline := time.Now().Add(budget)
	for i, loc := range chain {
		wait := rungBudget(time.Until(deadline), len(chain)-i)
		if wait <= 0 {
			break
		}
		el, err := try(loc, wait)
		if err == nil {
			return el, nil
		}
		s.log.Debug("locator missed",
			zap.String("locator", loc.String()),
			zap.Duration("wait", wait))
	}
	return nil, &NotFoundError{Chain: Describe(chain), Budget: budget}
}

func (s *Session) walkChainAll(budget time.Duration, chain []Locator, try func(Locator, time.Duration) (rod.Elements, error)) (rod.Elements, error) {
	deadline := time.Now().Add(budget)
	for i, loc := range chain {
		wait := rungBudget(time.Until(deadline), len(chain)-i)
		if wait <= 0 {
			break
		}
		els, err := try(loc, wait)
		if err == nil && len(els) > 0 {
			return els, nil
		}
		s.log.Debug("locator missed",
			zap.String("locator", loc.String()),
			zap.Duration("wait", wait))
	}
	return nil, &NotFoundError{Chain: Describe(chain), Budget: budget}
}

// scope is the element lookup surface shared by *rod.Page and *rod.Element.
type scope interface {
	Element(selector string) (*rod.Element, error)
	ElementX(xpath string) (*rod.Element, error)
	ElementR(selector, jsRegex string) (*rod.Element, error)
	Elements(selector string) (rod.Elements, error)
	ElementsX(xpath string) (rod.Elements, error)
}

func findOne(sc scope, loc Locator) (*rod.Element, error) {
	switch loc.Strategy {
	case ByXPath:
		return sc.ElementX(loc.Selector)
	case ByText:
		return sc.ElementR(loc.Selector, loc.Pattern())
	default:
		return sc.Element(loc.Selector)
	}
}

func findEvery(sc scope, loc Locator) (rod.Elements, error) {
	switch loc.Strategy {
	case ByXPath:
		return sc.ElementsX(loc.Selector)
	case ByText:
		// Text matching has no multi-element form; the single match is
		// already known to exist.
		el, err := sc.ElementR(loc.Selector, loc.Pattern())
		if err != nil {
			return nil, err
		}
		return rod.Elements{el}, nil
	default:
		return sc.Elements(loc.Selector)
	}
}

// pageElement adapts *rod.Element to the Element interface.
type pageElement struct {
	el      *rod.Element
	session *Session
}

func (e *pageElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *pageElement) Input(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select existing text: %w", err)
	}
	return el.Input(text)
}

func (e *pageElement) Text() (string, error) {
	return e.el.Text()
}

func (e *pageElement) Attribute(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *pageElement) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *pageElement) Find(ctx context.Context, budget time.Duration, chain ...Locator) (Element, error) {
	if budget <= 0 {
		budget = e.session.cfg.elementTimeout()
	}
	el, err := e.session.walkChain(budget, chain, func(loc Locator, wait time.Duration) (*rod.Element, error) {
		return findOne(e.el.Context(ctx).Timeout(wait), loc)
	})
	if err != nil {
		return nil, err
	}
	return &pageElement{el: el.CancelTimeout(), session: e.session}, nil
}

func (e *pageElement) FindAll(ctx context.Context, budget time.Duration, chain ...Locator) ([]Element, error) {
	if budget <= 0 {
		budget = e.session.cfg.elementTimeout()
	}
	matched, err := e.session.walkChainAll(budget, chain, func(loc Locator, wait time.Duration) (rod.Elements, error) {
		if _, err := findOne(e.el.Context(ctx).Timeout(wait), loc); err != nil {
			return nil, err
		}
		return findEvery(e.el.Context(ctx), loc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(matched))
	for _, el := range matched {
		out = append(out, &pageElement{el: el, session: e.session})
	}
	return out, nil
}
