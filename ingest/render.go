package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
)

// PageRenderer loads a page in a real browser and returns the rendered HTML. It is used
// for shop pages whose product image only appears after scripts run.
type PageRenderer interface {
	Name() string
	Render(ctx context.Context, pageURL string) (string, error)
}

var browserHeaders = map[string]interface{}{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-User":  "?1",
}

// ChromeRenderer drives a headless Chrome through the DevTools protocol.
type ChromeRenderer struct {
	// Settle is how long to wait after the body is ready.
	Settle time.Duration
}

func (ChromeRenderer) Name() string { return "chromedp" }

func (r ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	settle := r.Settle
	if settle <= 0 {
		settle = 3 * time.Second
	}

	var html string
	err := chromedp.Run(taskCtx,
		network.SetExtraHTTPHeaders(network.Headers(browserHeaders)),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp render: %w", err)
	}
	return html, nil
}

// SeleniumRenderer starts a ChromeDriver per render on a port leased from Ports.
type SeleniumRenderer struct {
	DriverPath string
	Ports      *PortPool
	Settle     time.Duration
}

// NewSeleniumRenderer leases driver ports from basePort up to basePort+count-1.
func NewSeleniumRenderer(driverPath string, basePort, count int) *SeleniumRenderer {
	return &SeleniumRenderer{DriverPath: driverPath, Ports: NewPortPool(basePort, count)}
}

func (*SeleniumRenderer) Name() string { return "selenium" }

func (r *SeleniumRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	port, err := r.Ports.Acquire()
	if err != nil {
		return "", err
	}
	defer r.Ports.Release(port)

	service, err := selenium.NewChromeDriverService(r.DriverPath, port)
	if err != nil {
		return "", fmt.Errorf("start chromedriver: %w", err)
	}
	defer service.Stop()

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Args: []string{
			"--headless=new",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--disable-gpu",
			"--window-size=1920,1080",
			"--user-agent=" + userAgent,
		},
		ExcludeSwitches: []string{"enable-automation"},
	})

	driver, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d/wd/hub", port))
	if err != nil {
		return "", fmt.Errorf("create webdriver: %w", err)
	}
	defer driver.Quit()

	timeout := 60 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := driver.SetPageLoadTimeout(timeout); err != nil {
		return "", fmt.Errorf("set page load timeout: %w", err)
	}
	if err := driver.Get(pageURL); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	settle := r.Settle
	if settle <= 0 {
		settle = 3 * time.Second
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(settle):
	}

	html, err := driver.PageSource()
	if err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return html, nil
}

// PortPool hands out local ports so concurrent renders do not collide.
type PortPool struct {
	mu    sync.Mutex
	base  int
	inUse []bool
}

func NewPortPool(base, count int) *PortPool {
	return &PortPool{base: base, inUse: make([]bool, count)}
}

// Acquire leases the lowest free port.
func (p *PortPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, used := range p.inUse {
		if !used {
			p.inUse[i] = true
			return p.base + i, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", p.base, p.base+len(p.inUse)-1)
}

// Release returns port to the pool. Ports outside the pool are ignored.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := port - p.base; i >= 0 && i < len(p.inUse) {
		p.inUse[i] = false
	}
}
