package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags the outcome of classifying one raw channel message.
type Kind int

const (
	KindNone Kind = iota
	KindSignal
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindResult:
		return "result"
	default:
		return "none"
	}
}

type SignalFields struct {
	// Asset is the normalized instrument ("EUR/USD"); RawAsset keeps the
	// form as written ("EURUSD-OTC") for display.
	Asset     string
	RawAsset  string
	Timeframe string
	Direction string
	EntryTime string
	Payout    *decimal.Decimal
}

type ResultFields struct {
	// Asset and Timeframe are optional disambiguation hints; empty when
	// the result message carries none.
	Asset     string
	Timeframe string
	Outcome   string
}

type Classification struct {
	Kind   Kind
	Signal *SignalFields
	Result *ResultFields
}

// Signal formats, evaluated in priority order. The marker format keys off
// the emoji tokens the channel decorates each field with; the plain format
// covers alternate channels posting bare "PAIR TF DIRECTION" lines.
var (
	markerAssetRe = regexp.MustCompile(`(?i)(?:💷|💶|💴|💵|🏦)\s*((?:[A-Z]{3}\s*/\s*[A-Z]{3}|[A-Z]{6}|GOLD|SILVER|XAU|XAG)(?:-OTC)?)`)
	markerFrameRe = regexp.MustCompile(`(?i)(?:💎|⏱️?|⌛|⏳|🕰)\s*([MH]\d{1,2})\b`)
	markerClockRe = regexp.MustCompile(`(?:⌚️?|⏰|🕒|🕓)\s*(\d{1,2}:\d{2}(?::\d{2})?)`)
	markerUpRe    = regexp.MustCompile(`(?i)(?:🔼|⬆️?|🟢|☝️?)\s*(?:call|buy)?|\b(?:call|buy)\b`)
	markerDownRe  = regexp.MustCompile(`(?i)(?:🔽|⬇️?|🔴|👇)\s*(?:put|sell)?|\b(?:put|sell)\b`)
	payoutRe      = regexp.MustCompile(`💰\s*(\d+(?:[.,]\d+)?)\s*%`)

	plainSignalRe = regexp.MustCompile(`(?im)^\s*((?:[A-Z]{3}/[A-Z]{3}|[A-Z]{6}|GOLD|SILVER|XAU|XAG)(?:-OTC)?)[\s,]+([MH]\d{1,2})[\s,]+(CALL|PUT|BUY|SELL)\b(?:[\s,]+(\d{1,2}:\d{2}(?::\d{2})?))?`)
)

// Result markers. A bare 6-letter token is deliberately not accepted as a
// result asset hint (words like PROFIT would match); the hint must be a
// slashed pair, an -OTC form or a commodity name.
var (
	// \bwin\b alone would miss "win2" (digits are word characters), so the
	// trailing level digit is folded into the marker.
	winMarkRe  = regexp.MustCompile(`(?i)✅|✔️?|☑️?|\bwin[12]?\b|\bwon\b|ربح`)
	lossMarkRe = regexp.MustCompile(`(?i)❌|✖️?|✗|\bloss\b|\blose\b|\blost\b|خسارة|خسر`)
	winLevelRe = regexp.MustCompile(`(?i)(?:\bwin|\bwon|ربح|✅)\s*([12¹²١٢])`)

	resultAssetRe = regexp.MustCompile(`(?i)\b([A-Z]{3}/[A-Z]{3}|[A-Z]{6}-OTC|GOLD|SILVER|XAU|XAG)\b`)
	resultFrameRe = regexp.MustCompile(`(?i)\b([MH]\d{1,2})\b`)
)

// Classify parses one raw message into a Signal, a Result, or None.
//
// Tie-break for messages exposing both a direction and a result marker: a
// complete asset+timeframe+direction triple always wins as Signal; a result
// marker only classifies when no such triple is present. A message is never
// both.
func Classify(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{Kind: KindNone}
	}

	if sig := parseSignal(text); sig != nil {
		return Classification{Kind: KindSignal, Signal: sig}
	}
	if res := parseResult(text); res != nil {
		return Classification{Kind: KindResult, Result: res}
	}
	return Classification{Kind: KindNone}
}

func parseSignal(text string) *SignalFields {
	// Marker format first.
	if m := markerAssetRe.FindStringSubmatch(text); m != nil {
		frame := markerFrameRe.FindStringSubmatch(text)
		direction := parseDirection(text)
		if frame != nil && direction != "" {
			raw := canonicalAssetToken(m[1])
			fields := &SignalFields{
				Asset:     NormalizeAsset(raw),
				RawAsset:  raw,
				Timeframe: strings.ToUpper(frame[1]),
				Direction: direction,
			}
			if clock := markerClockRe.FindStringSubmatch(text); clock != nil {
				fields.EntryTime = normalizeClock(clock[1])
			}
			if pay := payoutRe.FindStringSubmatch(text); pay != nil {
				if d, err := decimal.NewFromString(strings.ReplaceAll(pay[1], ",", ".")); err == nil {
					fields.Payout = &d
				}
			}
			return fields
		}
	}

	// Plain fallback format.
	if m := plainSignalRe.FindStringSubmatch(text); m != nil {
		direction := NormalizeDirection(m[3])
		if direction == "" {
			return nil
		}
		raw := canonicalAssetToken(m[1])
		fields := &SignalFields{
			Asset:     NormalizeAsset(raw),
			RawAsset:  raw,
			Timeframe: strings.ToUpper(m[2]),
			Direction: direction,
		}
		if m[4] != "" {
			fields.EntryTime = normalizeClock(m[4])
		}
		return fields
	}

	return nil
}

func parseResult(text string) *ResultFields {
	win := winMarkRe.MatchString(text)
	loss := lossMarkRe.MatchString(text)
	if !win && !loss {
		return nil
	}

	fields := &ResultFields{}
	if m := resultAssetRe.FindStringSubmatch(text); m != nil {
		fields.Asset = NormalizeAsset(canonicalAssetToken(m[1]))
	} else if m := markerAssetRe.FindStringSubmatch(text); m != nil {
		fields.Asset = NormalizeAsset(canonicalAssetToken(m[1]))
	}
	if m := resultFrameRe.FindStringSubmatch(text); m != nil {
		fields.Timeframe = strings.ToUpper(m[1])
	}

	// Loss never carries a sub-level; win defaults to plain "win" and is
	// refined by an adjacent 1/2, superscript or Arabic-Indic digit.
	if loss && !win {
		fields.Outcome = "loss"
		return fields
	}
	fields.Outcome = "win"
	if m := winLevelRe.FindStringSubmatch(text); m != nil {
		switch m[1] {
		case "1", "¹", "١":
			fields.Outcome = "win1"
		case "2", "²", "٢":
			fields.Outcome = "win2"
		}
	}
	return fields
}

func parseDirection(text string) string {
	up := markerUpRe.MatchString(text)
	down := markerDownRe.MatchString(text)
	if up == down {
		return ""
	}
	if up {
		return "CALL"
	}
	return "PUT"
}

// NormalizeDirection maps case-insensitive CALL/BUY to CALL and PUT/SELL to
// PUT. Anything else is rejected (empty string).
func NormalizeDirection(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CALL", "BUY":
		return "CALL"
	case "PUT", "SELL":
		return "PUT"
	default:
		return ""
	}
}

// NormalizeAsset rewrites a slashless 6-letter pair to slash form and strips
// an -OTC suffix. Commodity names pass through unchanged.
func NormalizeAsset(raw string) string {
	asset := strings.ToUpper(strings.TrimSpace(raw))
	asset = strings.TrimSuffix(asset, "-OTC")
	if len(asset) == 6 && !strings.Contains(asset, "/") && isLetters(asset) {
		asset = asset[:3] + "/" + asset[3:]
	}
	return asset
}

func canonicalAssetToken(raw string) string {
	token := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(token, " ", "")
}

func normalizeClock(raw string) string {
	if strings.Count(raw, ":") == 1 {
		return raw + ":00"
	}
	return raw
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
