// Package redact masks personal data in text that leaves the process
// through logs, task errors or callbacks.
package redact

import (
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	cpfPattern   = regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)
	phonePattern = regexp.MustCompile(`(?:\+55\s?)?\(?\b\d{2}\)?\s?9?\d{4}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`)
)

// Text masks e-mail addresses, formatted CPF numbers, phone numbers and card
// numbers. CNPJ numbers identify public bodies and suppliers and are kept.
func Text(value string) string {
	masked := emailPattern.ReplaceAllString(value, "[email_redacted]")
	masked = cpfPattern.ReplaceAllString(masked, "***.***.***-**")
	masked = cardPattern.ReplaceAllStringFunc(masked, maskCard)
	masked = phonePattern.ReplaceAllString(masked, "[phone_redacted]")
	return masked
}

func maskCard(value string) string {
	return "**** **** **** " + value[len(value)-4:]
}
