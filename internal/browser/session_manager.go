// Package browser owns the Chrome instance chathud scrapes through. It
// launches or attaches to a browser over the DevTools protocol, tracks the
// active tab and evaluates extraction scripts inside it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"chathud/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	// ErrNoActiveTab is returned when no tracked or attachable page exists.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrNotConnected is returned when the browser has not been started.
	ErrNotConnected = errors.New("browser not connected")
)

// Session describes the public metadata for a tracked tab.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Launch            []string
	Headless          bool
	Stealth           bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	SessionStore      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Stealth:           true,
		ViewportWidth:     1280,
		ViewportHeight:    900,
		NavigationTimeout: 30 * time.Second,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// sessionFile is the on-disk form of the session list.
type sessionFile struct {
	Active   string    `json:"active,omitempty"`
	Sessions []Session `json:"sessions"`
}

// SessionManager owns the Chrome connection and tracks open tabs. The active
// tab is resolved again on every request from the tabs the browser has open;
// the last resolved tab is remembered and persisted.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	active     string
	controlURL string
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Get(logging.CategoryBrowser).Warn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.active = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	if err := m.loadSessionsLocked(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	// The connection outlives ctx; page calls carry their own deadlines.
	browser := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected to %s", controlURL)
	return nil
}

func (m *SessionManager) resolveControlURL() (string, error) {
	if m.cfg.DebuggerURL != "" {
		return m.cfg.DebuggerURL, nil
	}

	l := launcher.New().Headless(m.cfg.Headless)
	if len(m.cfg.Launch) > 0 {
		if bin := m.cfg.Launch[0]; bin != "" {
			l = l.Bin(bin)
		}
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
	}

	url, err := l.Launch()
	if err == nil {
		return url, nil
	}
	if len(m.cfg.Launch) > 1 {
		// Retry without the extra flags.
		fallback := launcher.New().Headless(m.cfg.Headless)
		if bin := m.cfg.Launch[0]; bin != "" {
			fallback = fallback.Bin(bin)
		}
		alt, altErr := fallback.Launch()
		if altErr == nil {
			return alt, nil
		}
		return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	started := m.browser != nil
	m.mu.RUnlock()
	if started {
		return nil
	}
	return m.Start(ctx)
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes tracked pages and the browser. When attached to an
// external browser through DebuggerURL, pages are left open and only the
// connection is dropped.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	external := m.cfg.DebuggerURL != ""
	for id, record := range m.sessions {
		if record.page != nil && !external {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil && !external {
		err = m.browser.Close()
	}
	m.browser = nil
	m.controlURL = ""
	m.active = ""
	return err
}

// List returns metadata for all known sessions, oldest first.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.meta)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results
}

// CreateSession opens a new tab on url, tracks it and makes it active.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, ErrNotConnected
	}

	var page *rod.Page
	var err error
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("failed to set viewport: %v", err)
	}

	if url != "" {
		if err := page.Context(ctx).Timeout(m.cfg.GetNavigationTimeout()).Navigate(url); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("navigate %s: %v", url, err)
		}
	}

	meta := m.track(page, url, "active")
	m.startEventStream(meta.ID, page)
	_ = m.persistSessions()
	logging.Browser("session %s opened on %s", meta.ID, url)
	return &meta, nil
}

// Attach binds to an existing target by TargetID and makes it active.
func (m *SessionManager) Attach(ctx context.Context, targetID string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, ErrNotConnected
	}

	page, err := b.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	url := ""
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	id := m.bind(tab{targetID: targetID, url: url, page: page})
	meta, _ := m.GetSession(id)
	return &meta, nil
}

// AttachExisting attaches to the tab the user is on and returns its session.
func (m *SessionManager) AttachExisting(ctx context.Context) (*Session, error) {
	id, _, err := m.activePage(ctx)
	if err != nil {
		return nil, err
	}
	meta, _ := m.GetSession(id)
	return &meta, nil
}

func (m *SessionManager) track(page *rod.Page, url, status string) Session {
	now := time.Now()
	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     status,
		CreatedAt:  now,
		LastActive: now,
	}
	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.active = meta.ID
	m.mu.Unlock()
	return meta
}

// SetActive makes sessionID the tab scrapes run against.
func (m *SessionManager) SetActive(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.page == nil {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	m.active = sessionID
	return nil
}

// Active returns the metadata of the last resolved active tab. After Load
// the session may be detached; the next request resolves it again.
func (m *SessionManager) Active() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[m.active]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// focusScript reports whether a page is on screen and has input focus.
const focusScript = `() => ({visible: document.visibilityState === 'visible', focused: document.hasFocus()})`

const focusProbeTimeout = 2 * time.Second

// tab is an open page target that can be scraped.
type tab struct {
	targetID string
	url      string
	visible  bool
	focused  bool
	page     *rod.Page
}

// pickTab chooses the tab the user is on. A focused tab wins, then the
// remembered tab if it is visible, then any visible tab, then the
// remembered tab, then the first listed. The terminal usually holds input
// focus while the overlay is used, so visibility is what normally decides.
func pickTab(tabs []tab, remembered string) (tab, bool) {
	if len(tabs) == 0 {
		return tab{}, false
	}
	rank := func(t tab) int {
		switch {
		case t.focused:
			return 4
		case t.visible && t.targetID == remembered:
			return 3
		case t.visible:
			return 2
		case t.targetID == remembered:
			return 1
		}
		return 0
	}
	best := 0
	for i := range tabs {
		if rank(tabs[i]) > rank(tabs[best]) {
			best = i
		}
	}
	return tabs[best], true
}

// activePage resolves the tab the user is on, binds it to a session and
// makes it active. Sessions whose target has gone are dropped first.
func (m *SessionManager) activePage(ctx context.Context) (string, *rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return "", nil, err
	}
	m.mu.RLock()
	b := m.browser
	remembered := ""
	if rec, ok := m.sessions[m.active]; ok {
		remembered = rec.meta.TargetID
	}
	m.mu.RUnlock()
	if b == nil {
		return "", nil, ErrNotConnected
	}

	tabs, live, err := m.listTabs(ctx, b)
	if err != nil {
		return "", nil, err
	}
	m.pruneClosed(live)

	t, ok := pickTab(tabs, remembered)
	if !ok {
		return "", nil, ErrNoActiveTab
	}
	return m.bind(t), t.page, nil
}

// listTabs returns the scrapeable page targets with their focus state and
// the set of all live page target IDs. Internal pages are skipped unless a
// session already holds them.
func (m *SessionManager) listTabs(ctx context.Context, b *rod.Browser) ([]tab, map[string]bool, error) {
	targets, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, nil, fmt.Errorf("list targets: %w", err)
	}

	live := make(map[string]bool, len(targets.TargetInfos))
	var tabs []tab
	for _, t := range targets.TargetInfos {
		if string(t.Type) != "page" {
			continue
		}
		id := string(t.TargetID)
		live[id] = true
		if isInternalURL(t.URL) && !m.holds(id) {
			continue
		}
		page, err := b.PageFromTarget(t.TargetID)
		if err != nil {
			logging.BrowserDebug("skip target %s: %v", id, err)
			continue
		}
		visible, focused := probeFocus(ctx, page)
		tabs = append(tabs, tab{targetID: id, url: t.URL, visible: visible, focused: focused, page: page})
	}
	return tabs, live, nil
}

func probeFocus(ctx context.Context, page *rod.Page) (visible, focused bool) {
	p := page.Context(ctx).Timeout(focusProbeTimeout)
	defer p.CancelTimeout()
	res, err := p.Eval(focusScript)
	if err != nil {
		return false, false
	}
	return res.Value.Get("visible").Bool(), res.Value.Get("focused").Bool()
}

// holds reports whether a session has a live page on targetID.
func (m *SessionManager) holds(targetID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec := m.findLocked(targetID)
	return rec != nil && rec.page != nil
}

// findLocked returns the session for targetID, preferring one with a live
// page. Caller must hold lock.
func (m *SessionManager) findLocked(targetID string) *sessionRecord {
	var found *sessionRecord
	for _, rec := range m.sessions {
		if rec.meta.TargetID != targetID {
			continue
		}
		if rec.page != nil {
			return rec
		}
		found = rec
	}
	return found
}

// pruneClosed drops the page of every session whose target is not in live.
func (m *SessionManager) pruneClosed(live map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.sessions {
		if rec.page == nil || live[rec.meta.TargetID] {
			continue
		}
		rec.page = nil
		rec.meta.Status = "closed"
		logging.Browser("session %s closed, target %s is gone", id, rec.meta.TargetID)
	}
}

// bind makes t the active tab, reusing the session that already holds its
// target, and persists the change.
func (m *SessionManager) bind(t tab) string {
	m.mu.Lock()
	id, fresh, changed := m.bindLocked(t)
	m.mu.Unlock()

	if fresh {
		m.startEventStream(id, t.page)
	}
	if changed {
		_ = m.persistSessions()
	}
	return id
}

// bindLocked records t and reports whether its page is newly bound and
// whether the active session changed. Caller must hold lock.
func (m *SessionManager) bindLocked(t tab) (id string, fresh, changed bool) {
	now := time.Now()
	rec := m.findLocked(t.targetID)
	if rec == nil {
		rec = &sessionRecord{meta: Session{ID: uuid.NewString(), TargetID: t.targetID, CreatedAt: now}}
		m.sessions[rec.meta.ID] = rec
	}
	fresh = rec.page == nil
	if fresh {
		rec.page = t.page
		rec.meta.Status = "attached"
	}
	if t.url != "" {
		rec.meta.URL = t.url
	}
	rec.meta.LastActive = now

	changed = fresh || m.active != rec.meta.ID
	m.active = rec.meta.ID
	return rec.meta.ID, fresh, changed
}

// Evaluate runs js (a function expression) in the active tab with args and
// returns the JSON encoding of its result. Promises are awaited.
func (m *SessionManager) Evaluate(ctx context.Context, js string, args ...any) ([]byte, error) {
	id, page, err := m.activePage(ctx)
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate in %s: %w", id, err)
	}
	m.UpdateMetadata(id, func(s Session) Session {
		s.LastActive = time.Now()
		return s
	})
	if res == nil {
		return []byte("null"), nil
	}
	return res.Value.MarshalJSON()
}

// ActiveURL returns the URL of the active tab.
func (m *SessionManager) ActiveURL(ctx context.Context) (string, error) {
	_, page, err := m.activePage(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Page returns the underlying Rod page for a session.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.page == nil {
		return nil, false
	}
	return rec.page, true
}

// UpdateMetadata updates session metadata.
func (m *SessionManager) UpdateMetadata(sessionID string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
}

// GetSession returns session metadata.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// Navigate navigates a session to url.
func (m *SessionManager) Navigate(ctx context.Context, sessionID, url string) error {
	if err := m.ensureStarted(ctx); err != nil {
		return err
	}
	page, ok := m.Page(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	return page.Context(ctx).Timeout(m.cfg.GetNavigationTimeout()).Navigate(url)
}

// startEventStream keeps the session URL current as the tab navigates. The
// stream lives as long as the browser connection.
func (m *SessionManager) startEventStream(sessionID string, page *rod.Page) {
	wait := page.EachEvent(
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return
			}
			m.UpdateMetadata(sessionID, func(s Session) Session {
				s.URL = ev.Frame.URL
				s.LastActive = time.Now()
				return s
			})
			logging.BrowserDebug("session %s navigated to %s", sessionID, ev.Frame.URL)
		},
	)
	go wait()
}

// persistSessions writes session metadata to disk.
func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	data, err := json.MarshalIndent(sessionFile{Active: active, Sessions: m.List()}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// Load reads the persisted session list without connecting to a browser.
func (m *SessionManager) Load() ([]Session, error) {
	m.mu.Lock()
	err := m.loadSessionsLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return m.List(), nil
}

// loadSessionsLocked loads persisted metadata. Caller must hold lock.
func (m *SessionManager) loadSessionsLocked() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Older files hold a bare session list.
		if lerr := json.Unmarshal(data, &file.Sessions); lerr != nil {
			return err
		}
	}

	for _, s := range file.Sessions {
		s.Status = "detached"
		m.sessions[s.ID] = &sessionRecord{meta: s, page: nil}
	}
	if _, ok := m.sessions[file.Active]; ok {
		m.active = file.Active
	}
	return nil
}

func isInternalURL(url string) bool {
	internalPrefixes := []string{
		"chrome://",
		"chrome-extension://",
		"chrome-untrusted://",
		"devtools://",
		"about:",
		"data:",
		"blob:",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
