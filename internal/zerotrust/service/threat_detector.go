package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"strings"
	"sync"
	"time"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

var (
	sqlInjectionPattern = regexp.MustCompile(
		`(?i)(\b(union|select|insert|update|delete|drop|alter|create|exec|execute)\b\s+(all\s+)?.*\b(from|into|table|database|where|set)\b|--\s|;\s*(drop|delete|update|insert)|/\*.*\*/)`,
	)
	xssPattern = regexp.MustCompile(
		`(?i)(<script[^>]*>|javascript:|on(error|load|click|mouse|focus)\s*=|<iframe|<object|<embed|<svg\s+on|eval\s*\(|document\.(cookie|write|location)|window\.(location|open))`,
	)
	pathTraversalPattern = regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.%2e/|%2e\./)`)
	commandPattern       = regexp.MustCompile(
		"(?i)[;&|`$]\\s*(cat|ls|dir|whoami|id|pwd|uname|wget|curl|nc|netcat|bash|sh|cmd|powershell)\\b",
	)
	ldapPattern    = regexp.MustCompile(`[()&|!*\\]`)
	botPattern     = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|headless|phantom|selenium|puppeteer|playwright)`)
	scannerPattern = regexp.MustCompile(
		`(?i)(nikto|nmap|sqlmap|burp|acunetix|nessus|openvas|dirbuster|gobuster|wfuzz|nuclei|masscan)`,
	)
)

const (
	shortUserAgent      = 20
	loginHistoryWindow  = 24 * time.Hour
	loginHistorySeed    = 10
	anomalyThreshold    = 3
	anomalyNewIP        = 2
	anomalyNewCountry   = 3
	anomalyUnusualHour  = 1
	offHoursStart       = 5
	offHoursEnd         = 23
	publicIPThreatScore = 5
)

// ThreatConfig tunes threat assessment.
type ThreatConfig struct {
	BruteForceThreshold    int
	BruteForceWindow       time.Duration
	ImpossibleTravelWindow time.Duration
	BaselineWindow         time.Duration
	BaselineMinSamples     int
	BaselineTTL            time.Duration
	IPCacheTTL             time.Duration
	// Reputation lists hold addresses or CIDR prefixes.
	TorExitNodes   []string
	VPNRanges      []string
	HostingRanges  []string
	KnownAttackers []string
}

// DefaultThreatConfig returns the stock thresholds.
func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		BruteForceThreshold:    5,
		BruteForceWindow:       15 * time.Minute,
		ImpossibleTravelWindow: 30 * time.Minute,
		BaselineWindow:         30 * 24 * time.Hour,
		BaselineMinSamples:     5,
		BaselineTTL:            time.Hour,
		IPCacheTTL:             30 * time.Minute,
	}
}

type cachedIntel struct {
	intel   ztDomain.IPIntel
	expires time.Time
}

type cachedBaseline struct {
	baseline *ztDomain.Baseline
	expires  time.Time
}

// ThreatDetector scores raw requests. Brute-force and impossible-travel state lives in
// per-identifier sliding windows that are pruned on every check.
type ThreatDetector struct {
	cfg    ThreatConfig
	events EventLister
	logger *slog.Logger
	now    func() time.Time

	tor, vpn, hosting, attackers []netip.Prefix

	mu        sync.Mutex
	failed    map[string][]time.Time
	logins    map[string][]ztDomain.LoginRecord
	ipCache   map[string]cachedIntel
	baselines map[string]cachedBaseline
}

// NewThreatDetector parses the reputation lists. events may be nil, in which case login
// history and baselines start empty.
func NewThreatDetector(cfg ThreatConfig, events EventLister, logger *slog.Logger) (*ThreatDetector, error) {
	d := &ThreatDetector{
		cfg:       cfg,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		failed:    make(map[string][]time.Time),
		logins:    make(map[string][]ztDomain.LoginRecord),
		ipCache:   make(map[string]cachedIntel),
		baselines: make(map[string]cachedBaseline),
	}

	var err error
	if d.tor, err = parsePrefixes(cfg.TorExitNodes); err != nil {
		return nil, err
	}
	if d.vpn, err = parsePrefixes(cfg.VPNRanges); err != nil {
		return nil, err
	}
	if d.hosting, err = parsePrefixes(cfg.HostingRanges); err != nil {
		return nil, err
	}
	if d.attackers, err = parsePrefixes(cfg.KnownAttackers); err != nil {
		return nil, err
	}
	return d, nil
}

func parsePrefixes(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid reputation prefix "+v)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid reputation address "+v)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Assess runs every detector over the request and accumulates a capped score.
func (d *ThreatDetector) Assess(ctx context.Context, rc ztDomain.RequestContext) (*ztDomain.Assessment, error) {
	if rc.Timestamp.IsZero() {
		rc.Timestamp = d.now()
	}

	var signals []ztDomain.Signal
	add := func(kind, description string) {
		signals = append(signals, ztDomain.Signal{
			Type:        kind,
			Description: description,
			Weight:      ztDomain.SignalWeights[kind],
		})
	}

	intel := d.CheckIP(rc.IPAddress)
	if intel.IsTor {
		add(ztDomain.SignalTorExit, "Request from Tor exit node")
	}
	if intel.IsVPN {
		add(ztDomain.SignalVPNProxy, "Request through VPN or proxy")
	}
	if intel.IsKnownAttack {
		add(ztDomain.SignalKnownAttacker, "IP associated with known attacks")
	}
	if intel.IsHosting {
		add(ztDomain.SignalHostingIP, "Request from hosting or datacenter IP")
	}

	signals = append(signals, AnalyzeUserAgent(rc.UserAgent)...)

	if rc.UserID != "" {
		travel, err := d.DetectImpossibleTravel(ctx, rc.UserID, rc.IPAddress, rc.Country, rc.Timestamp)
		if err != nil {
			return nil, err
		}
		if travel {
			add(ztDomain.SignalImpossibleTravel, "Login from geographically impossible location")
		}
	}

	identifier := rc.UserID
	if identifier == "" {
		identifier = rc.Username
	}
	if identifier != "" && d.DetectBruteForce(identifier) {
		add(ztDomain.SignalBruteForce, "Multiple failed authentication attempts")
	}

	if rc.UserID != "" {
		anomalous, err := d.DetectAnomalousAccess(ctx, rc)
		if err != nil {
			return nil, err
		}
		if anomalous {
			add(ztDomain.SignalAnomalousAccess, "Unusual access pattern detected")
		}
	}

	for _, threat := range ValidateInput(rc.RequestPath).Threats {
		add(ztDomain.SignalInputAttack, threat)
	}

	if hour := rc.Timestamp.Hour(); hour < offHoursStart || hour > offHoursEnd {
		add(ztDomain.SignalOffHours, "Access outside normal hours")
	}

	var score float64
	for _, s := range signals {
		score += s.Weight
	}
	if score > ztDomain.MaxRiskScore {
		score = ztDomain.MaxRiskScore
	}

	level := ztDomain.ClassifyRisk(score)
	a := &ztDomain.Assessment{
		Score:       score,
		Level:       level,
		Signals:     signals,
		Action:      ztDomain.Recommend(level),
		ShouldBlock: level >= ztDomain.RiskCritical,
		AssessedAt:  d.now(),
	}
	if a.ShouldBlock {
		types := make([]string, 0, len(signals))
		for _, s := range signals {
			types = append(types, s.Type)
		}
		a.BlockReason = fmt.Sprintf("Risk score %.0f/100 exceeds threshold. Signals: %s",
			score, strings.Join(types, ", "))
	}
	return a, nil
}

// CheckIP grades an address against the configured reputation lists. Results are cached.
func (d *ThreatDetector) CheckIP(ip string) ztDomain.IPIntel {
	now := d.now()

	d.mu.Lock()
	if c, ok := d.ipCache[ip]; ok && now.Before(c.expires) {
		d.mu.Unlock()
		return c.intel
	}
	d.mu.Unlock()

	intel := ztDomain.IPIntel{IPAddress: ip, CheckedAt: now}
	if addr, err := netip.ParseAddr(strings.TrimSpace(ip)); err == nil {
		addr = addr.Unmap()
		intel.IsPrivate = addr.IsPrivate() || addr.IsLoopback()
		intel.IsTor = containsAddr(d.tor, addr)
		intel.IsVPN = containsAddr(d.vpn, addr)
		intel.IsHosting = containsAddr(d.hosting, addr)
		intel.IsKnownAttack = containsAddr(d.attackers, addr)
	}
	if !intel.IsPrivate {
		intel.ThreatScore = publicIPThreatScore
	}

	d.mu.Lock()
	d.ipCache[ip] = cachedIntel{intel: intel, expires: now.Add(d.cfg.IPCacheTTL)}
	d.mu.Unlock()
	return intel
}

// AnalyzeUserAgent flags missing, short, bot and scanner user agents.
func AnalyzeUserAgent(ua string) []ztDomain.Signal {
	signal := func(kind, description string) ztDomain.Signal {
		return ztDomain.Signal{Type: kind, Description: description, Weight: ztDomain.SignalWeights[kind]}
	}

	if strings.TrimSpace(ua) == "" {
		return []ztDomain.Signal{signal(ztDomain.SignalMissingUA, "No User-Agent header")}
	}
	var out []ztDomain.Signal
	if botPattern.MatchString(ua) {
		out = append(out, signal(ztDomain.SignalBotUA, "Bot or scanner User-Agent detected"))
	}
	if len(ua) < shortUserAgent {
		out = append(out, signal(ztDomain.SignalShortUA, "Suspiciously short User-Agent"))
	}
	if scannerPattern.MatchString(ua) {
		out = append(out, signal(ztDomain.SignalScannerUA, "Vulnerability scanner User-Agent"))
	}
	return out
}

// ValidateInput looks for injection signatures.
func ValidateInput(input string) ztDomain.InputValidation {
	if input == "" {
		return ztDomain.InputValidation{Clean: true}
	}

	var threats []string
	if sqlInjectionPattern.MatchString(input) {
		threats = append(threats, "SQL injection pattern detected")
	}
	if xssPattern.MatchString(input) {
		threats = append(threats, "XSS pattern detected")
	}
	if pathTraversalPattern.MatchString(input) {
		threats = append(threats, "Path traversal pattern detected")
	}
	if commandPattern.MatchString(input) {
		threats = append(threats, "Command injection pattern detected")
	}
	if ldapPattern.MatchString(input) {
		threats = append(threats, "LDAP injection pattern detected")
	}
	return ztDomain.InputValidation{Clean: len(threats) == 0, Threats: threats}
}

// RecordFailedAttempt appends a failure to the identifier's window.
func (d *ThreatDetector) RecordFailedAttempt(identifier string) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed[identifier] = append(d.pruneAttempts(d.failed[identifier], now), now)
}

// ClearFailedAttempts resets the window after a successful login.
func (d *ThreatDetector) ClearFailedAttempts(identifier string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failed, identifier)
}

// DetectBruteForce reports whether the identifier reached the threshold inside the window.
func (d *ThreatDetector) DetectBruteForce(identifier string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	attempts := d.pruneAttempts(d.failed[identifier], now)
	if len(attempts) == 0 {
		delete(d.failed, identifier)
		return false
	}
	d.failed[identifier] = attempts
	return len(attempts) >= d.cfg.BruteForceThreshold
}

func (d *ThreatDetector) pruneAttempts(attempts []time.Time, now time.Time) []time.Time {
	kept := attempts[:0]
	for _, t := range attempts {
		if now.Sub(t) <= d.cfg.BruteForceWindow {
			kept = append(kept, t)
		}
	}
	return kept
}

func (d *ThreatDetector) seedLogins(ctx context.Context, userID string, now time.Time) ([]ztDomain.LoginRecord, error) {
	if d.events == nil {
		return nil, nil
	}
	events, err := d.events.ListSecurityEvents(ctx, auditDomain.EventFilter{
		UserID:    userID,
		EventType: auditDomain.EventLoginSuccess,
		Since:     now.Add(-loginHistoryWindow),
		Limit:     loginHistorySeed,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load login history")
	}
	out := make([]ztDomain.LoginRecord, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.IPAddress == "" {
			continue
		}
		out = append(out, ztDomain.LoginRecord{IPAddress: e.IPAddress, Country: e.Country, At: e.Timestamp})
	}
	return out, nil
}

// DetectImpossibleTravel records the login and reports whether an earlier login from a
// different country falls inside the travel window.
func (d *ThreatDetector) DetectImpossibleTravel(
	ctx context.Context,
	userID, ip, country string,
	at time.Time,
) (bool, error) {
	d.mu.Lock()
	history, ok := d.logins[userID]
	d.mu.Unlock()

	if !ok {
		seeded, err := d.seedLogins(ctx, userID, at)
		if err != nil {
			return false, err
		}
		history = seeded
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.logins[userID]; ok {
		history = current
	}

	kept := history[:0]
	for _, h := range history {
		if at.Sub(h.At) <= loginHistoryWindow {
			kept = append(kept, h)
		}
	}
	history = kept

	impossible := false
	for i := len(history) - 1; i >= 0; i-- {
		prev := history[i]
		gap := at.Sub(prev.At)
		if gap < 0 {
			gap = -gap
		}
		if gap < d.cfg.ImpossibleTravelWindow &&
			prev.Country != "" && country != "" &&
			!strings.EqualFold(prev.Country, country) {
			d.logger.Warn("impossible travel detected",
				slog.String("user_id", userID),
				slog.String("from", prev.Country),
				slog.String("to", country),
				slog.Duration("gap", gap),
			)
			impossible = true
			break
		}
	}

	d.logins[userID] = append(history, ztDomain.LoginRecord{IPAddress: ip, Country: country, At: at})
	return impossible, nil
}

// Baseline returns the user's learned pattern, or nil when there are too few samples.
func (d *ThreatDetector) Baseline(ctx context.Context, userID string) (*ztDomain.Baseline, error) {
	now := d.now()

	d.mu.Lock()
	if c, ok := d.baselines[userID]; ok && now.Before(c.expires) {
		d.mu.Unlock()
		return c.baseline, nil
	}
	d.mu.Unlock()

	if d.events == nil {
		return nil, nil
	}
	events, err := d.events.ListSecurityEvents(ctx, auditDomain.EventFilter{
		UserID:    userID,
		EventType: auditDomain.EventLoginSuccess,
		Since:     now.Add(-d.cfg.BaselineWindow),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load baseline events")
	}
	if len(events) < d.cfg.BaselineMinSamples {
		return nil, nil
	}

	b := &ztDomain.Baseline{
		UserID:      userID,
		KnownIPs:    make(map[string]struct{}),
		Countries:   make(map[string]struct{}),
		Hours:       make(map[int]struct{}),
		SampleCount: len(events),
		BuiltAt:     now,
	}
	for _, e := range events {
		if e.IPAddress != "" {
			b.KnownIPs[e.IPAddress] = struct{}{}
		}
		if e.Country != "" {
			b.Countries[strings.ToUpper(e.Country)] = struct{}{}
		}
		b.Hours[e.Timestamp.Hour()] = struct{}{}
	}

	d.mu.Lock()
	d.baselines[userID] = cachedBaseline{baseline: b, expires: now.Add(d.cfg.BaselineTTL)}
	d.mu.Unlock()
	return b, nil
}

// DetectAnomalousAccess compares the request with the user's baseline. A new IP scores 2,
// a new country 3 and an unusual hour 1. Three or more is anomalous.
func (d *ThreatDetector) DetectAnomalousAccess(ctx context.Context, rc ztDomain.RequestContext) (bool, error) {
	b, err := d.Baseline(ctx, rc.UserID)
	if err != nil || b == nil {
		return false, err
	}

	score := 0
	if _, ok := b.KnownIPs[rc.IPAddress]; !ok {
		score += anomalyNewIP
	}
	if rc.Country != "" {
		if _, ok := b.Countries[strings.ToUpper(rc.Country)]; !ok {
			score += anomalyNewCountry
		}
	}
	at := rc.Timestamp
	if at.IsZero() {
		at = d.now()
	}
	if _, ok := b.Hours[at.Hour()]; !ok {
		score += anomalyUnusualHour
	}
	return score >= anomalyThreshold, nil
}

// Prune drops stale sliding-window entries and expired caches. It returns how many
// identifiers were removed.
func (d *ThreatDetector) Prune() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, attempts := range d.failed {
		if kept := d.pruneAttempts(attempts, now); len(kept) == 0 {
			delete(d.failed, id)
			removed++
		} else {
			d.failed[id] = kept
		}
	}
	for id, history := range d.logins {
		if len(history) == 0 || now.Sub(history[len(history)-1].At) > loginHistoryWindow {
			delete(d.logins, id)
			removed++
		}
	}
	for ip, c := range d.ipCache {
		if !now.Before(c.expires) {
			delete(d.ipCache, ip)
		}
	}
	for id, c := range d.baselines {
		if !now.Before(c.expires) {
			delete(d.baselines, id)
		}
	}
	return removed
}
