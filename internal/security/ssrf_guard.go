// Package security は配信先Webhookの検証と外部送信テキストの無害化を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedDestination は配信先が内部ネットワークを指している場合に返される。
var ErrBlockedDestination = errors.New("blocked webhook destination")

// SSRFGuardService は配信先Webhookへの送信経路を保護するインターフェース。
// 起動時のURL検証と、送信時のHTTPクライアント生成の両方で使用される。
type SSRFGuardService interface {
	// NewSafeClient は内部ネットワークへ接続できないHTTPクライアントを生成する。
	// 判定はDNS解決後のダイヤル時点で行われる。リダイレクトは追従しない。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL は配信先URLを静的に検証する。
	ValidateURL(rawURL string) error
}

// webhookPolicy は配信先として許可する条件をまとめたもの。
type webhookPolicy struct {
	schemes        []string
	ports          []int
	deniedHosts    []string
	deniedSuffix   []string
	deniedPrefixes []netip.Prefix
}

// 10/8, 172.16/12, 192.168/16, fc00::/7 は netip.Addr.IsPrivate で判定する。
var defaultPolicy = webhookPolicy{
	schemes:     []string{"http", "https"},
	ports:       []int{80, 443},
	deniedHosts: []string{"localhost", "metadata.google.internal"},
	deniedSuffix: []string{
		".localhost",
		".internal",
	},
	deniedPrefixes: []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("100.64.0.0/10"),
	},
}

func (p webhookPolicy) deniesAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return true
	}
	return slices.ContainsFunc(p.deniedPrefixes, func(prefix netip.Prefix) bool {
		return prefix.Contains(addr)
	})
}

func (p webhookPolicy) deniesHost(host string) bool {
	name := strings.TrimSuffix(strings.ToLower(host), ".")
	if slices.Contains(p.deniedHosts, name) {
		return true
	}
	return slices.ContainsFunc(p.deniedSuffix, func(suffix string) bool {
		return strings.HasSuffix(name, suffix)
	})
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct {
	policy webhookPolicy
}

// NewSSRFGuard は既定の配信先ポリシーでガードを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{policy: defaultPolicy}
}

// NewSafeClient はsafeurlのクライアントを生成する。
// safeurlはダイヤル時に解決済みIPを検査するため、DNS再バインディングも防げる。
// POST本文をリダイレクト先へ再送しないよう、最初の応答をそのまま返す。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.policy.schemes...).
		SetAllowedPorts(g.policy.ports...).
		Build()

	client := safeurl.Client(cfg).Client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return client
}

// ValidateURL は配信先URLをDNS解決なしで検証する。
// 認証情報を埋め込んだURLはログに残るおそれがあるため拒否する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("webhook URL is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse webhook URL: %w", err)
	}
	if !slices.Contains(g.policy.schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("webhook scheme %q not allowed (allowed: %v)", u.Scheme, g.policy.schemes)
	}
	if u.User != nil {
		return fmt.Errorf("webhook URL must not embed credentials")
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("webhook URL has no host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if g.policy.deniesAddr(addr) {
			return fmt.Errorf("%w: address %s", ErrBlockedDestination, addr)
		}
		return nil
	}
	if g.policy.deniesHost(host) {
		return fmt.Errorf("%w: host %s", ErrBlockedDestination, host)
	}
	return nil
}
