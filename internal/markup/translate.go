package markup

import (
	"fmt"
	"strings"
)

// Translation services leave CJK angle brackets alone, so links travel
// through them as numbered placeholders.
const (
	placeholderOpen  = '〈'
	placeholderClose = '〉'
)

func placeholder(n int) string {
	return fmt.Sprintf("%c%d%c", placeholderOpen, n, placeholderClose)
}

// PrepareForTranslation replaces every link with a numbered placeholder,
// starting at 1, and returns the link names in placeholder order.
func PrepareForTranslation(segs []Segment) (string, []string) {
	var (
		text  strings.Builder
		names []string
	)
	for _, s := range segs {
		if !s.IsLink() {
			text.WriteString(s.Text)
			continue
		}
		names = append(names, s.Text)
		text.WriteString(placeholder(len(names)))
	}
	return text.String(), names
}

// RestoreLinks puts "[name]" back in place of each placeholder.
func RestoreLinks(translated string, names []string) string {
	if len(names) == 0 {
		return translated
	}
	pairs := make([]string, 0, 2*len(names))
	for i, name := range names {
		pairs = append(pairs, placeholder(i+1), "["+name+"]")
	}
	return strings.NewReplacer(pairs...).Replace(translated)
}
