package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/golang/glog"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/config"
)

// ExecAllocatorOptions returns the chromedp options used to launch Chrome
// for cfg.
func ExecAllocatorOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+cfg.Proxy))
	}
	for _, arg := range cfg.BrowserArgs {
		name, value, ok := browserFlag(arg)
		if ok {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

type cdpSession struct {
	// tab is the context of the browser tab; every action runs under it.
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	// pageLoad bounds Navigate when positive.
	pageLoad time.Duration

	mu   sync.Mutex
	wait time.Duration
	done bool
}

func openChromedp(ctx context.Context, cfg *config.Config) (webform.Session, error) {
	// The browser outlives ctx, which only bounds the launch.
	parent := context.WithoutCancel(ctx)
	var (
		alloc       context.Context
		cancelAlloc context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		alloc, cancelAlloc = chromedp.NewRemoteAllocator(parent, cfg.RemoteURL)
	} else {
		alloc, cancelAlloc = chromedp.NewExecAllocator(parent, ExecAllocatorOptions(cfg)...)
	}
	tab, cancelTab := chromedp.NewContext(alloc,
		chromedp.WithLogf(glog.Infof),
		chromedp.WithErrorf(glog.Errorf),
	)
	s := &cdpSession{tab: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc, pageLoad: cfg.PageLoadTimeout}

	// The first Run starts the browser; the tab context, not a derived one,
	// must own it.
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tab)
	stop()
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}
	glog.Infof("started chrome over the DevTools protocol")
	return s, nil
}

// run executes actions in the tab, abandoning them when ctx is done.
func (s *cdpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	c, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(c, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	if s.pageLoad > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pageLoad)
		defer cancel()
	}
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *cdpSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// SetImplicitWait sets the query timeout of later FindElement calls.
func (s *cdpSession) SetImplicitWait(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wait = d
	return nil
}

func (s *cdpSession) FindElement(ctx context.Context, loc webform.Locator) (webform.Element, error) {
	css, err := loc.CSS()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	wait := s.wait
	s.mu.Unlock()

	opts := []chromedp.QueryOption{chromedp.ByQuery}
	qctx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	} else {
		opts = append(opts, chromedp.AtLeast(0))
	}

	var nodes []*cdp.Node
	if err := s.run(qctx, chromedp.Nodes(css, &nodes, opts...)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, noSuchElement(loc)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, noSuchElement(loc)
	}
	return &cdpElement{s: s, ids: []cdp.NodeID{nodes[0].NodeID}}, nil
}

func (s *cdpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		png, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	return png, err
}

// Quit closes the tab, then the browser or the remote connection.
func (s *cdpSession) Quit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	err := chromedp.Cancel(s.tab)
	s.cancelTab()
	s.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type cdpElement struct {
	s   *cdpSession
	ids []cdp.NodeID
}

func (e *cdpElement) SendKeys(ctx context.Context, keys string) error {
	return e.s.run(ctx, chromedp.SendKeys(e.ids, keys, chromedp.ByNodeID))
}

func (e *cdpElement) Click(ctx context.Context) error {
	return e.s.run(ctx, chromedp.Click(e.ids, chromedp.ByNodeID))
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.s.run(ctx, chromedp.Text(e.ids, &text, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return text, nil
}
