package pipelines

import (
	"regexp"
	"strings"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// Memo markers recognized case-insensitively anywhere in a memo (spec
// §6.6). Their presence or absence selects which pipeline and which
// target currency a tracked operation routes to.
const (
	markerSats           = "#sats"
	markerPayWithSats    = "#paywithsats"
	markerHBD            = "#hbd"
	markerConvertKeepsats = "#convertkeepsats"
)

var lightningAddressPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// hasMarker reports whether memo contains marker, case-insensitively.
func hasMarker(memo, marker string) bool {
	return strings.Contains(strings.ToLower(memo), marker)
}

// PayWithSats reports whether memo carries the #paywithsats marker: pay
// the decoded invoice out of the customer's standing Keepsats balance
// rather than converting this transfer's own HIVE value first (spec
// §4.M.1 step 3, original_source's process_payment.py
// `if not initiating_op.paywithsats`).
func PayWithSats(memo string) bool {
	return hasMarker(memo, markerPayWithSats)
}

// ConvertKeepsats reports whether memo carries the #convertkeepsats
// marker, routing a custom_json to pipeline M.4 (Keepsats → HIVE)
// instead of M.5's plain internal transfer.
func ConvertKeepsats(memo string) bool {
	return hasMarker(memo, markerConvertKeepsats)
}

// TargetCurrency classifies which currency an inbound Lightning payment
// (M.2) or Keepsats withdrawal (M.4) should settle in, per the
// precedence spec §6.6 names: #sats routes to Keepsats (no on-chain
// settlement at all, represented here as money.MSATS), #hbd routes to
// HBD, and anything else defaults to HIVE.
func TargetCurrency(memo string) money.Currency {
	switch {
	case hasMarker(memo, markerSats):
		return money.MSATS
	case hasMarker(memo, markerHBD):
		return money.HBD
	default:
		return money.HIVE
	}
}

// IsLightningAddress reports whether s looks like a Lightning address
// (name@host) rather than a raw bolt11 invoice or bech32 LNURL (spec
// §6.3).
func IsLightningAddress(s string) bool {
	return lightningAddressPattern.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

// stripLightningPrefix removes a leading "lightning:" scheme marker,
// matching spec §6.3's "Input strings may be prefixed lightning:".
func stripLightningPrefix(s string) string {
	trimmed := strings.TrimSpace(s)
	const prefix = "lightning:"
	if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return trimmed[len(prefix):]
	}
	return trimmed
}

// extractPaymentTarget pulls the Lightning payment target (a bolt11
// invoice, Lightning address, or bech32 LNURL) out of a Transfer memo,
// stripping any trailing marker words like #paywithsats so the
// remainder parses cleanly. Memos are otherwise free text (spec §8
// Redesign Flags "Dynamic memo parsing"); this is the package's single
// MemoClassifier entry point for the payment-target case.
func extractPaymentTarget(memo string) string {
	fields := strings.Fields(memo)
	for _, f := range fields {
		if strings.HasPrefix(f, "#") {
			continue
		}
		candidate := stripLightningPrefix(f)
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
