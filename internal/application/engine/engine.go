package engine

import "strings"

// BaseCurrency extracts the settlement currency from an instrument name:
// "BTC-PERPETUAL" → "BTC".
func BaseCurrency(instrument string) string {
	base, _, _ := strings.Cut(instrument, "-")
	return strings.ToUpper(base)
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
