package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL は重複判定用にURLを正規化する。
// スキームとホストの小文字化、フラグメント・既定ポート・末尾スラッシュ・utm_*パラメータの除去、
// クエリのキー順ソートを行う。解析できないURLは前後の空白を除いてそのまま返す。
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	for _, vs := range q {
		sort.Strings(vs)
	}
	// Encodeはキー順にソートする
	u.RawQuery = q.Encode()

	return u.String()
}

// HashURL は正規化したURLのSHA-256ハッシュ（16進）を返す。空のURLは空文字を返す。
func HashURL(raw string) string {
	normalized := NormalizeURL(raw)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
