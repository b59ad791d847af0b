package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP derives the caller's address from proxy headers: the first hop of
// X-Forwarded-For, then X-Real-IP, then CF-Connecting-IP. It returns "" when
// none carries a parseable address.
func ClientIP(h http.Header) string {
	candidates := []string{
		firstHop(h.Get("X-Forwarded-For")),
		h.Get("X-Real-IP"),
		h.Get("CF-Connecting-IP"),
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.Unmap().String()
		}
	}
	return ""
}

func firstHop(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return first
}

// VerifyOptions configures a Verifier.
type VerifyOptions struct {
	Secret          string
	SignatureHeader string
	AllowedIPs      []string
	SkipIPCheck     bool
	AllowUnsigned   bool
}

// Result is the outcome of verifying one request. Reason is for the log
// only; callers answer every failure with the same body.
type Result struct {
	Valid  bool
	Reason string
	IP     string
}

// Verifier authenticates webhook deliveries by source address and shared
// secret.
type Verifier struct {
	secret        []byte
	header        string
	prefixes      []netip.Prefix
	allowAnyIP    bool
	skipIPCheck   bool
	allowUnsigned bool
}

// NewVerifier parses the allow-list. Plain addresses become single-host
// prefixes; "*" and "0.0.0.0/0" allow every source.
func NewVerifier(opts VerifyOptions) (*Verifier, error) {
	v := &Verifier{
		secret:        []byte(opts.Secret),
		header:        opts.SignatureHeader,
		skipIPCheck:   opts.SkipIPCheck,
		allowUnsigned: opts.AllowUnsigned,
	}
	if v.header == "" {
		v.header = DefaultSignatureHeader
	}
	for _, entry := range opts.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "*" || entry == "0.0.0.0/0" {
			v.allowAnyIP = true
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			v.prefixes = append(v.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("allowed ip %q: not an address or CIDR", entry)
		}
		addr = addr.Unmap()
		v.prefixes = append(v.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return v, nil
}

// SignatureHeader is the header carrying the shared secret.
func (v *Verifier) SignatureHeader() string { return v.header }

// Verify checks the source address, then the signature header against the
// body.
func (v *Verifier) Verify(h http.Header, body []byte) Result {
	ip := ClientIP(h)
	if reason := v.checkIP(ip); reason != "" {
		return Result{Reason: reason, IP: ip}
	}
	if reason := v.checkSignature(strings.TrimSpace(h.Get(v.header)), body); reason != "" {
		return Result{Reason: reason, IP: ip}
	}
	return Result{Valid: true, IP: ip}
}

func (v *Verifier) checkIP(ip string) string {
	if v.skipIPCheck || v.allowAnyIP {
		return ""
	}
	if ip == "" {
		return "client ip unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "client ip unparseable"
	}
	for _, p := range v.prefixes {
		if p.Contains(addr) {
			return ""
		}
	}
	return "client ip not allowed"
}

func (v *Verifier) checkSignature(signature string, body []byte) string {
	if signature == "" {
		if v.allowUnsigned {
			return ""
		}
		if len(v.secret) == 0 {
			return "no secret configured"
		}
		return "signature missing"
	}
	if len(v.secret) == 0 {
		return "signature present but no secret configured"
	}
	if subtle.ConstantTimeCompare([]byte(signature), v.secret) == 1 {
		return ""
	}
	if v.matchesHMAC(signature, body) {
		return ""
	}
	return "signature mismatch"
}

// matchesHMAC accepts an HMAC-SHA256 of the body keyed by the secret, encoded
// as base64, hex or "sha256=<hex>".
func (v *Verifier) matchesHMAC(signature string, body []byte) bool {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, decode := range []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		hex.DecodeString,
		func(s string) ([]byte, error) {
			hexSig, ok := strings.CutPrefix(s, "sha256=")
			if !ok {
				return nil, fmt.Errorf("no sha256= prefix")
			}
			return hex.DecodeString(hexSig)
		},
	} {
		got, err := decode(signature)
		if err == nil && subtle.ConstantTimeCompare(expected, got) == 1 {
			return true
		}
	}
	return false
}
