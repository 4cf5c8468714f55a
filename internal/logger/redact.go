package logger

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// panPattern matches 13-19 digit runs, optionally grouped by spaces or dashes.
var panPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

type maskFunc func(string) string

var sensitiveKeys = map[string]maskFunc{
	"number":        MaskCardNumber,
	"cardnumber":    MaskCardNumber,
	"pan":           MaskCardNumber,
	"cvv":           maskAll,
	"cvc":           maskAll,
	"password":      maskAll,
	"token":         MaskToken,
	"stripetoken":   MaskToken,
	"apikey":        MaskSecret,
	"xapikey":       MaskSecret,
	"secret":        MaskSecret,
	"secretkey":     MaskSecret,
	"authorization": MaskSecret,
}

func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "-", "")
	return strings.ReplaceAll(key, "_", "")
}

func maskerFor(key string) (maskFunc, bool) {
	fn, ok := sensitiveKeys[normalizeKey(key)]
	return fn, ok
}

func maskAll(string) string { return "***" }

// MaskCardNumber keeps only the last four digits.
func MaskCardNumber(number string) string {
	digits := onlyDigits(number)
	if len(digits) < 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}

// Last4 returns the final four digits of a card number, or "" when there are
// fewer than four.
func Last4(number string) string {
	digits := onlyDigits(number)
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

// MaskSecret keeps a short prefix of a credential. Values of eight characters
// or fewer are fully masked.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "..."
}

// MaskToken keeps a prefix and suffix of an opaque token.
func MaskToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 8:
		return "***"
	case len(token) <= 16:
		return token[:4] + "..."
	default:
		return token[:6] + "..." + token[len(token)-4:]
	}
}

// ScrubString masks anything in s that looks like a primary account number.
func ScrubString(s string) string {
	return panPattern.ReplaceAllStringFunc(s, MaskCardNumber)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizeFields(fields []zap.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = sanitizeField(f)
	}
	return out
}

func sanitizeField(f zap.Field) zap.Field {
	mask, sensitive := maskerFor(f.Key)

	switch f.Type {
	case zapcore.StringType:
		if sensitive {
			return zap.String(f.Key, mask(f.String))
		}
		return zap.String(f.Key, ScrubString(f.String))
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zap.String(f.Key, ScrubString(err.Error()))
		}
		return f
	case zapcore.StringerType:
		if s, ok := f.Interface.(fmt.Stringer); ok {
			return sanitizeField(zap.String(f.Key, s.String()))
		}
		return f
	case zapcore.ReflectType:
		if sensitive {
			return zap.String(f.Key, redacted)
		}
		return zap.Any(f.Key, sanitizeValue(f.Interface))
	case zapcore.ObjectMarshalerType, zapcore.ArrayMarshalerType, zapcore.SkipType:
		return f
	default:
		if sensitive {
			return zap.String(f.Key, redacted)
		}
		return f
	}
}

// sanitizeValue walks the generic shapes produced by JSON decoding and
// masks sensitive keys and PAN-like strings.
func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return ScrubString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if mask, ok := maskerFor(k); ok {
				if s, isString := item.(string); isString {
					out[k] = mask(s)
				} else {
					out[k] = redacted
				}
				continue
			}
			out[k] = sanitizeValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			if mask, ok := maskerFor(k); ok {
				out[k] = mask(item)
				continue
			}
			out[k] = ScrubString(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = ScrubString(item)
		}
		return out
	default:
		return v
	}
}
