package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/chrome"
	"github.com/wanmail/webform/firefox"
	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/log"
	"github.com/wanmail/webform/webdriver"
)

// Capabilities builds the WebDriver capabilities requested for cfg.
func Capabilities(cfg *config.Config) (webdriver.Capabilities, error) {
	caps := webdriver.Capabilities{"browserName": cfg.Browser}
	switch cfg.Browser {
	case config.Chrome:
		c := chrome.Capabilities{
			Path: cfg.BrowserPath,
			Args: append([]string(nil), cfg.BrowserArgs...),
		}
		if cfg.Headless {
			c.Headless()
		}
		for _, ext := range cfg.Extensions {
			fi, err := os.Stat(ext)
			if err != nil {
				return nil, fmt.Errorf("extension: %w", err)
			}
			if fi.IsDir() {
				err = c.AddUnpackedExtension(ext)
			} else {
				err = c.AddExtension(ext)
			}
			if err != nil {
				return nil, err
			}
		}
		caps.AddChrome(c)
	case config.Firefox:
		if len(cfg.Extensions) > 0 {
			return nil, errors.New("extensions are only supported in chrome")
		}
		f := firefox.Capabilities{
			Binary: cfg.BrowserPath,
			Args:   append([]string(nil), cfg.BrowserArgs...),
		}
		if cfg.Headless {
			f.Headless()
		}
		caps.AddFirefox(f)
	}
	if cfg.Proxy != "" {
		caps.AddProxy(webdriver.Proxy{
			Type:         webdriver.Manual,
			SOCKS:        cfg.Proxy,
			SOCKSVersion: 5,
		})
	}
	if cfg.BrowserLogLevel != "" {
		level, err := log.ParseLevel(cfg.BrowserLogLevel)
		if err != nil {
			return nil, err
		}
		caps.AddLogging(log.Capabilities{log.Browser: level})
	}
	return caps, nil
}

type wdSession struct {
	wd          webdriver.WebDriver
	service     *webdriver.Service
	browserLogs bool

	mu   sync.Mutex
	done bool
}

func openWebDriver(ctx context.Context, cfg *config.Config, o options) (webform.Session, error) {
	caps, err := Capabilities(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.RemoteURL
	var service *webdriver.Service
	if addr == "" {
		service, err = startService(ctx, cfg, o)
		if err != nil {
			return nil, err
		}
		addr = service.Addr()
	}

	wd, err := webdriver.NewRemote(caps, addr)
	if err != nil {
		if service != nil {
			service.Stop()
		}
		return nil, err
	}
	if cfg.PageLoadTimeout > 0 {
		if err := wd.SetPageLoadTimeout(cfg.PageLoadTimeout); err != nil {
			wd.Quit()
			if service != nil {
				service.Stop()
			}
			return nil, fmt.Errorf("setting page load timeout: %w", err)
		}
	}
	glog.Infof("started %s session %s on %s", cfg.Browser, wd.SessionID(), addr)
	return &wdSession{
		wd:          wd,
		service:     service,
		browserLogs: cfg.BrowserLogLevel != "",
	}, nil
}

// startService runs the driver on a free local port.
func startService(ctx context.Context, cfg *config.Config, o options) (*webdriver.Service, error) {
	path := cfg.DriverPath
	if path == "" {
		if o.drivers == nil {
			return nil, errors.New("no driver_path configured and no driver manager to provision one")
		}
		var err error
		if path, err = o.drivers.Setup(ctx, cfg.Browser, cfg.BrowserPath); err != nil {
			return nil, fmt.Errorf("provisioning a driver: %w", err)
		}
	}

	port, err := webdriver.PickUnusedPort()
	if err != nil {
		return nil, err
	}
	var opts []webdriver.ServiceOption
	if cfg.Xvfb {
		opts = append(opts, webdriver.StartFrameBuffer())
	}
	if o.output != nil {
		opts = append(opts, webdriver.Output(o.output))
	}

	switch cfg.Browser {
	case config.Firefox:
		return webdriver.NewGeckoDriverService(path, port, opts...)
	default:
		return webdriver.NewChromeDriverService(path, port, opts...)
	}
}

func (s *wdSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wd.Get(url)
}

func (s *wdSession) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.wd.Title()
}

func (s *wdSession) SetImplicitWait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wd.SetImplicitWaitTimeout(d)
}

func (s *wdSession) FindElement(ctx context.Context, loc webform.Locator) (webform.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	we, err := s.wd.FindElement(loc.By, loc.Value)
	if err != nil {
		return nil, err
	}
	return wdElement{we}, nil
}

func (s *wdSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.wd.Screenshot()
}

// Quit logs the browser console if it was collected, deletes the session
// and stops the local driver.
func (s *wdSession) Quit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	if s.browserLogs {
		s.logBrowserConsole()
	}
	err := s.wd.Quit()
	if s.service != nil {
		if serr := s.service.Stop(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (s *wdSession) logBrowserConsole() {
	msgs, err := s.wd.Log(log.Browser)
	if err != nil {
		glog.Warningf("reading the browser log: %v", err)
		return
	}
	for _, m := range msgs {
		glog.Infof("browser: %s", m)
	}
}

type wdElement struct {
	we webdriver.WebElement
}

func (e wdElement) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.we.SendKeys(keys)
}

func (e wdElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.we.Click()
}

func (e wdElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.we.Text()
}
