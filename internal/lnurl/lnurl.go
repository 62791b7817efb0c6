// Package lnurl resolves LNURL-pay targets — bech32-encoded LNURLs and
// Lightning addresses (name@host) — into a payable bolt11 invoice
// (spec §6.3).
package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// lightningPrefix is stripped from input strings before decoding.
const lightningPrefix = "lightning:"

// PayRequest is the lnurlp well-known / bech32-decoded metadata
// response (spec §6.3).
type PayRequest struct {
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"` // msats
	MaxSendable    int64  `json:"maxSendable"` // msats
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed"`
	Tag            string `json:"tag"`
}

// CallbackResponse is the invoice returned by hitting Callback.
type CallbackResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Resolver fetches LNURL-pay metadata and invoices over HTTP.
type Resolver struct {
	httpClient *http.Client
}

// NewResolver constructs a Resolver with the given timeout (defaults to
// 10s, matching internal/oracle's REST source client).
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{httpClient: &http.Client{Timeout: timeout}}
}

// ResolvePayRequest decodes input — a Lightning address, a bech32 LNURL,
// or either prefixed with "lightning:" — into its PayRequest metadata.
func (r *Resolver) ResolvePayRequest(ctx context.Context, input string) (*PayRequest, error) {
	target, err := ResolveURL(input)
	if err != nil {
		return nil, err
	}

	var payReq PayRequest
	if err := fetchJSON(ctx, r.httpClient, target, &payReq); err != nil {
		return nil, fmt.Errorf("lnurl: fetch pay request: %w", err)
	}
	if payReq.Tag != "" && payReq.Tag != "payRequest" {
		return nil, fmt.Errorf("lnurl: unexpected tag %q, want payRequest", payReq.Tag)
	}
	return &payReq, nil
}

// RequestInvoice hits payReq.Callback with the requested amount (msats)
// and optional comment, returning the resulting bolt11 invoice.
func (r *Resolver) RequestInvoice(ctx context.Context, payReq *PayRequest, amountMsat int64, comment string) (string, error) {
	if amountMsat < payReq.MinSendable || amountMsat > payReq.MaxSendable {
		return "", fmt.Errorf("lnurl: amount %d msat outside allowed range [%d, %d]",
			amountMsat, payReq.MinSendable, payReq.MaxSendable)
	}

	callbackURL, err := url.Parse(payReq.Callback)
	if err != nil {
		return "", fmt.Errorf("lnurl: invalid callback url %q: %w", payReq.Callback, err)
	}
	q := callbackURL.Query()
	q.Set("amount", strconv.FormatInt(amountMsat, 10))
	if comment != "" {
		if payReq.CommentAllowed > 0 && len(comment) > payReq.CommentAllowed {
			comment = comment[:payReq.CommentAllowed]
		}
		if payReq.CommentAllowed > 0 {
			q.Set("comment", comment)
		}
	}
	callbackURL.RawQuery = q.Encode()

	var cbResp CallbackResponse
	if err := fetchJSON(ctx, r.httpClient, callbackURL.String(), &cbResp); err != nil {
		return "", fmt.Errorf("lnurl: callback request: %w", err)
	}
	if cbResp.Status == "ERROR" {
		return "", fmt.Errorf("lnurl: callback error: %s", cbResp.Reason)
	}
	if cbResp.PR == "" {
		return "", fmt.Errorf("lnurl: callback returned no invoice")
	}
	return cbResp.PR, nil
}

// ResolveURL turns a Lightning-address or bech32-LNURL input string into
// the well-known HTTP(S) URL to query.
func ResolveURL(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(trimmed), lightningPrefix) {
		trimmed = trimmed[len(lightningPrefix):]
	}

	if addr, ok := parseLightningAddress(trimmed); ok {
		return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", addr.host, addr.name), nil
	}

	return decodeBech32URL(trimmed)
}

type lightningAddress struct {
	name string
	host string
}

// parseLightningAddress recognizes the "name@host" form (spec §6.3).
func parseLightningAddress(s string) (lightningAddress, bool) {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return lightningAddress{}, false
	}
	name, host := s[:at], s[at+1:]
	if strings.ContainsAny(name, "/: ") || strings.ContainsAny(host, "/ ") {
		return lightningAddress{}, false
	}
	return lightningAddress{name: name, host: host}, true
}

// decodeBech32URL decodes a bech32-encoded LNURL ("lnurl1...") into its
// plain URL.
func decodeBech32URL(s string) (string, error) {
	_, data, err := bech32.Decode(s)
	if err != nil {
		return "", fmt.Errorf("lnurl: bech32 decode: %w", err)
	}
	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("lnurl: bech32 bit conversion: %w", err)
	}
	decodedURL := string(converted)
	if _, err := url.ParseRequestURI(decodedURL); err != nil {
		return "", fmt.Errorf("lnurl: decoded value is not a URL: %w", err)
	}
	return decodedURL, nil
}

func fetchJSON(ctx context.Context, client *http.Client, target string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("lnurl http request failed", zap.String("url", target), zap.Error(err))
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
