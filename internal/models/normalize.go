package models

import (
	"strconv"
	"strings"
)

// The legacy channels wrote loosely-shaped records with several generations
// of field names (status vs payment_status, barber vs barber_id vs
// provider_id, camelCase vs snake_case). Everything entering the engine is
// normalized here, once, via an explicit alias table; nothing downstream
// branches on raw field presence.

var fieldAliases = map[string][]string{
	"customer_name":   {"customer_name", "customerName", "name"},
	"provider_id":     {"provider_id", "barber_id", "barber", "providerRef"},
	"date":            {"date", "appointment_date"},
	"time":            {"time", "appointment_time", "start_time"},
	"hours":           {"hours", "duration_hours", "durationHours"},
	"status":          {"status", "payment_status", "paymentStatus"},
	"ref_code":        {"ref_code", "refCode", "payment_ref", "paymentRef"},
	"phone":           {"phone", "phone_number"},
	"note":            {"note", "comment"},
	"service_type":    {"service_type", "serviceType"},
	"channel_user_id": {"channel_user_id", "line_user_id", "lineUserId"},
	"amount_read":     {"amount_read", "amountRead", "amount"},
	"reservation_id":  {"reservation_id", "reservationId", "id"},
}

var cancelledWords = map[string]bool{
	"cancel":    true,
	"cancelled": true,
	"canceled":  true,
	"void":      true,
	"refund":    true,
	"refunded":  true,
}

var paidWords = map[string]bool{
	"paid":      true,
	"success":   true,
	"completed": true,
	"confirmed": true,
}

// IsCancelledStatus reports whether a status word from any channel means the
// record must be ignored by availability and schedule views.
func IsCancelledStatus(status string) bool {
	return cancelledWords[strings.ToLower(strings.TrimSpace(status))]
}

// IsPaidStatus reports whether a status word from any channel counts as a
// settled payment.
func IsPaidStatus(status string) bool {
	return paidWords[strings.ToLower(strings.TrimSpace(status))]
}

// StringField resolves a canonical field from a raw record, trying every
// known legacy alias in order.
func StringField(raw map[string]any, canonical string) string {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		case int64:
			return strconv.FormatInt(s, 10)
		}
	}
	return ""
}

// IntField resolves a canonical numeric field, accepting both numeric and
// string encodings seen in legacy records.
func IntField(raw map[string]any, canonical string) int {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return parsed
			}
		}
	}
	return 0
}

// FloatField resolves a canonical decimal field from a raw record.
func FloatField(raw map[string]any, canonical string) (float64, bool) {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

// Boolish interprets the assorted truthy encodings legacy channels used for
// flag fields (true, "true", 1, "1").
func Boolish(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b == 1
	case int:
		return b == 1
	default:
		return false
	}
}
