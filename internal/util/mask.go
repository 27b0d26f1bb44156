// Package util reúne helpers sin dependencias del dominio.
package util

import "strings"

// MaskEmail deja la primera letra del usuario y del dominio:
// "jane.doe@example.com" -> "j…@e….com". Valores sin '@' se tratan como opacos.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}

	local = maskHead(local)
	labels := strings.Split(domain, ".")
	// solo el primer label; el TLD queda visible para diagnóstico
	labels[0] = maskHead(labels[0])
	return local + "@" + strings.Join(labels, ".")
}

func maskHead(s string) string {
	if len(s) <= 1 {
		return s
	}
	return s[:1] + "…"
}
