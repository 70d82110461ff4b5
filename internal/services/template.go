package services

import "strings"

// RenderTemplate substitutes {{variable}} placeholders in a template string
// from a flat lookup map. The template is scanned once, left to right;
// variables missing from the map render as empty strings. A "{{" without a
// closing "}}" is emitted literally.
func RenderTemplate(template string, data map[string]string) string {
	if template == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		open := strings.Index(template[i:], "{{")
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		open += i

		end := strings.Index(template[open+2:], "}}")
		if end < 0 {
			b.WriteString(template[i:])
			break
		}

		b.WriteString(template[i:open])
		name := template[open+2 : open+2+end]
		b.WriteString(data[name])
		i = open + 2 + end + 2
	}

	return b.String()
}
