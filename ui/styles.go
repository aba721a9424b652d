package ui

// Styles carries the render functions views apply to text. Callers build
// one from their styling library; tests pass Plain.
type Styles struct {
	Header    func(string) string
	Normal    func(string) string
	Selected  func(string) string
	Secondary func(string) string
	Branch    func(string) string
}

// Plain returns identity styles for tests and non-terminal output.
func Plain() Styles {
	id := func(s string) string { return s }
	return Styles{
		Header:    id,
		Normal:    id,
		Selected:  id,
		Secondary: id,
		Branch:    id,
	}
}

// PadOrTrim fits s into exactly width runes, right-padding with spaces or
// truncating with an ellipsis.
func PadOrTrim(s string, width int) string {
	runes := []rune(s)
	if len(runes) > width {
		if width <= 1 {
			return string(runes[:width])
		}
		return string(runes[:width-1]) + "…"
	}
	for len(runes) < width {
		runes = append(runes, ' ')
	}
	return string(runes)
}
