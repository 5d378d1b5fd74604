package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/golang/glog"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/config"
)

// Launcher returns the rod launcher that starts Chrome for cfg.
func Launcher(cfg *config.Config) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}
	if cfg.Proxy != "" {
		l = l.Proxy("socks5://" + cfg.Proxy)
	}
	for _, arg := range cfg.BrowserArgs {
		name, value, ok := browserFlag(arg)
		if ok {
			l = l.Set(flags.Flag(name), value)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

type rodSession struct {
	browser *rod.Browser
	page    *rod.Page
	conn    *cdp.WebSocket
	// launcher is nil for a remote browser.
	launcher *launcher.Launcher
	pageLoad time.Duration

	mu   sync.Mutex
	wait time.Duration
	done bool
}

func openRod(ctx context.Context, cfg *config.Config) (webform.Session, error) {
	var (
		controlURL string
		l          *launcher.Launcher
		err        error
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.RemoteURL != "" {
		controlURL, err = launcher.ResolveURL(cfg.RemoteURL)
	} else {
		l = Launcher(cfg)
		controlURL, err = l.Launch()
	}
	if err != nil {
		return nil, err
	}

	// Quit closes conn; a remote browser outlives it.
	conn := &cdp.WebSocket{}
	if err := conn.Connect(ctx, controlURL, nil); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, err
	}
	browser := rod.New().Client(cdp.New().Start(conn))
	if err := browser.Connect(); err != nil {
		conn.Close()
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		if l != nil {
			browser.Close()
			l.Cleanup()
		}
		conn.Close()
		return nil, err
	}
	glog.Infof("started chrome through rod at %s", controlURL)
	return &rodSession{browser: browser, page: page, conn: conn, launcher: l, pageLoad: cfg.PageLoadTimeout}, nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if s.pageLoad > 0 {
		p = p.Timeout(s.pageLoad)
		defer p.CancelTimeout()
	}
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

// SetImplicitWait sets the timeout of later FindElement calls.
func (s *rodSession) SetImplicitWait(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wait = d
	return nil
}

func (s *rodSession) FindElement(ctx context.Context, loc webform.Locator) (webform.Element, error) {
	css, err := loc.CSS()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	wait := s.wait
	s.mu.Unlock()

	p := s.page.Context(ctx)
	if wait == 0 {
		els, err := p.Elements(css)
		if err != nil {
			return nil, err
		}
		if els.Empty() {
			return nil, noSuchElement(loc)
		}
		return &rodElement{els.First()}, nil
	}

	el, err := p.Timeout(wait).Element(css)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, noSuchElement(loc)
		}
		return nil, err
	}
	return &rodElement{el.CancelTimeout()}, nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, nil)
}

// Quit closes the page and the connection. A launched browser is closed and
// its profile removed; a remote one is left running.
func (s *rodSession) Quit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	if s.launcher == nil {
		err := s.page.Close()
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		return err
	}
	err := s.browser.Close()
	s.conn.Close()
	s.launcher.Cleanup()
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) SendKeys(ctx context.Context, keys string) error {
	return e.el.Context(ctx).Input(keys)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
