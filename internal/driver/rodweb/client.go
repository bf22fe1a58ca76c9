// Package rodweb drives WhatsApp Web through a Chromium instance using
// go-rod. It implements driver.Driver; everything above it talks to the
// interface and never sees a browser.
package rodweb

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"zapfacil/internal/driver"
	"zapfacil/pkg/logx"
)

const (
	baseURL = "https://web.whatsapp.com"

	// Per-keystroke pause window while composing, to keep typing at a
	// human cadence.
	typeDelayMin = 50 * time.Millisecond
	typeDelayMax = 150 * time.Millisecond
)

var ErrNotConnected = errors.New("browser session not started")

var _ driver.Driver = (*Client)(nil)

type Config struct {
	Headless bool
	// ProfileDir persists the WhatsApp session between runs so the QR
	// scan is only needed once.
	ProfileDir string
	// Bin overrides the browser binary; empty means rod's default lookup.
	Bin string
	// CallTimeout bounds individual element lookups and clicks.
	CallTimeout time.Duration
	// StartupTimeout bounds the initial load, which includes the user
	// scanning the QR code on first login.
	StartupTimeout time.Duration
}

func (c *Config) normalize() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 180 * time.Second
	}
}

type Client struct {
	cfg Config
	log logx.Logger

	mu      sync.Mutex
	lnchr   *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	rnd     *rand.Rand
}

func New(cfg Config, log logx.Logger) *Client {
	cfg.normalize()
	return &Client{
		cfg: cfg,
		log: log,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect launches the browser, opens WhatsApp Web and waits for the main
// panel. The wait is long on purpose: first logins need a QR scan.
func (c *Client) Connect(ctx context.Context) error {
	l := launcher.New().Headless(c.cfg.Headless)
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	if c.cfg.ProfileDir != "" {
		l = l.UserDataDir(c.cfg.ProfileDir)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: baseURL})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return fmt.Errorf("open whatsapp web: %w", err)
	}

	c.log.Info("waiting for whatsapp web to load",
		logx.Duration("timeout", c.cfg.StartupTimeout))
	if _, err := page.Timeout(c.cfg.StartupTimeout).Element(selMainPanel); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return fmt.Errorf("whatsapp web did not become ready: %w", err)
	}

	c.mu.Lock()
	c.lnchr = l
	c.browser = browser
	c.page = page
	c.mu.Unlock()
	c.log.Info("whatsapp web session ready")
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	browser, l := c.browser, c.lnchr
	c.browser, c.page, c.lnchr = nil, nil, nil
	c.mu.Unlock()

	if browser == nil {
		return nil
	}
	err := browser.Close()
	if l != nil {
		l.Cleanup()
	}
	return err
}

func (c *Client) currentPage() (*rod.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil {
		return nil, ErrNotConnected
	}
	return c.page, nil
}

func (c *Client) IsReady(ctx context.Context) bool {
	page, err := c.currentPage()
	if err != nil {
		return false
	}
	ok, _, err := page.Context(ctx).Has(selMainPanel)
	return err == nil && ok
}

func (c *Client) HasQRPrompt(ctx context.Context) bool {
	page, err := c.currentPage()
	if err != nil {
		return false
	}
	ok, _, err := page.Context(ctx).Has(selQRCanvas)
	return err == nil && ok
}

// OpenDirectChat navigates straight to the conversation for a phone
// number. WhatsApp shows an error dialog (and no compose box) for
// invalid numbers, which surfaces here as a timeout.
func (c *Client) OpenDirectChat(ctx context.Context, identifier string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	target := baseURL + "/send?phone=" + url.QueryEscape(identifier)
	if err := page.Context(ctx).Timeout(c.cfg.CallTimeout).Navigate(target); err != nil {
		return fmt.Errorf("navigate to chat: %w", err)
	}
	// The compose box only appears once the conversation actually loaded.
	if _, err := page.Context(ctx).Timeout(2 * c.cfg.CallTimeout).Element(selTextBox); err != nil {
		return fmt.Errorf("conversation did not load: %w", err)
	}
	return nil
}

// OpenChatByTitle finds a chat through the sidebar search. Group chats
// have no phone number, so this is the only way to reach them.
func (c *Client) OpenChatByTitle(ctx context.Context, title string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(c.cfg.CallTimeout)

	search, err := p.Element(selSearchInput)
	if err != nil {
		return fmt.Errorf("search box not found: %w", err)
	}
	if err := search.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus search box: %w", err)
	}
	if err := search.SelectAllText(); err == nil {
		_ = p.Keyboard.Type(input.Backspace)
	}
	if err := search.Input(title); err != nil {
		return fmt.Errorf("type search query: %w", err)
	}

	result, err := p.Element(searchResultByTitle(title))
	if err != nil {
		// Clear the search so the sidebar is usable for the next recipient.
		_ = p.Keyboard.Type(input.Escape)
		return fmt.Errorf("chat %q not found: %w", title, err)
	}
	if err := result.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open chat %q: %w", title, err)
	}
	if got := c.OpenChatTitle(ctx); got != title {
		return fmt.Errorf("opened chat %q, wanted %q", got, title)
	}
	return nil
}

// OpenChatTitle returns the header title of the open conversation, or ""
// when none is open.
func (c *Client) OpenChatTitle(ctx context.Context) string {
	page, err := c.currentPage()
	if err != nil {
		return ""
	}
	el, err := page.Context(ctx).Timeout(c.cfg.CallTimeout / 2).Element(selChatTitle)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// SendText types the message into the compose box rune by rune with Shift+
// Enter for line breaks, then clicks send. Empty messages are a no-op.
func (c *Client) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(c.cfg.CallTimeout)

	box, err := p.Element(selTextBox)
	if err != nil {
		return fmt.Errorf("compose box not found: %w", err)
	}
	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus compose box: %w", err)
	}

	for _, r := range text {
		if r == '\n' {
			if err := shiftEnter(p); err != nil {
				return fmt.Errorf("insert line break: %w", err)
			}
		} else if err := p.InsertText(string(r)); err != nil {
			return fmt.Errorf("type message: %w", err)
		}
		if !c.typePause(ctx) {
			return ctx.Err()
		}
	}

	send, err := p.Element(selSendButton)
	if err != nil {
		return fmt.Errorf("send button not found: %w", err)
	}
	if err := send.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	return nil
}

// AttachFile uploads a file through the clip menu and confirms the send.
// The image/video input is used for media extensions, the generic
// document input for everything else.
func (c *Client) AttachFile(ctx context.Context, path string) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(c.cfg.CallTimeout)

	clip, err := p.Element(selClipButton)
	if err != nil {
		return fmt.Errorf("attach menu not found: %w", err)
	}
	if err := clip.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open attach menu: %w", err)
	}

	in, err := p.Element(attachInputFor(abs))
	if err != nil {
		_ = p.Keyboard.Type(input.Escape)
		return fmt.Errorf("file input not found: %w", err)
	}
	if err := in.SetFiles([]string{abs}); err != nil {
		_ = p.Keyboard.Type(input.Escape)
		return fmt.Errorf("select file: %w", err)
	}

	// Uploads of large media take a while to preview.
	long := page.Context(ctx).Timeout(3 * c.cfg.CallTimeout)
	send, err := long.Element(selSendAttachment)
	if err != nil {
		_ = p.Keyboard.Type(input.Escape)
		return fmt.Errorf("attachment send button not found: %w", err)
	}
	if err := send.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("confirm attachment: %w", err)
	}
	return c.waitAttachmentSent(ctx)
}

// waitAttachmentSent polls until the attachment preview is gone, which is
// the only observable signal that the upload finished.
func (c *Client) waitAttachmentSent(ctx context.Context) error {
	page, err := c.currentPage()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(3 * c.cfg.CallTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		ok, _, err := page.Context(ctx).Has(selSendAttachment)
		if err == nil && !ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return errors.New("attachment send confirmation timed out")
}

func shiftEnter(p *rod.Page) error {
	if err := p.Keyboard.Press(input.ShiftLeft); err != nil {
		return err
	}
	if err := p.Keyboard.Type(input.Enter); err != nil {
		return err
	}
	return p.Keyboard.Release(input.ShiftLeft)
}

// typePause sleeps the per-keystroke delay; false means ctx was cancelled.
func (c *Client) typePause(ctx context.Context) bool {
	c.mu.Lock()
	d := typeDelayMin + time.Duration(c.rnd.Int63n(int64(typeDelayMax-typeDelayMin)))
	c.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
