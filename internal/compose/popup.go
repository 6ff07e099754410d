package compose

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/joeblew999/plat-climate/internal/templates"
)

// Property is one formatted popup row.
type Property struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// hiddenProperties are bookkeeping fields of the cluster analysis.
var hiddenProperties = map[string]bool{
	"pixel_count":  true,
	"risk_density": true,
	"cluster_id":   true,
}

// labelFixes restore acronyms that title casing breaks.
var labelFixes = strings.NewReplacer("Slr", "SLR", "Gdp", "GDP")

func languageTag(lang string) language.Tag {
	if strings.HasPrefix(strings.ToLower(lang), "de") {
		return language.German
	}
	return language.English
}

// Humanize turns snake_case, kebab-case and camelCase keys into Title Case.
func Humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
		}
		cur = append(cur, r)
	}
	flush()

	caser := cases.Title(language.English)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return labelFixes.Replace(strings.Join(words, " "))
}

// isArea reports whether key holds an area in square meters.
func isArea(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "area") && strings.Contains(k, "square") && strings.Contains(k, "meter")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatValue renders one property value. ok is false for nil values.
func formatValue(p *message.Printer, key string, v any, lang string) (string, bool) {
	if v == nil {
		return "", false
	}
	if f, ok := toFloat(v); ok {
		if isArea(key) {
			return p.Sprint(number.Decimal(f/1e6, number.MaxFractionDigits(2))) + " km²", true
		}
		return p.Sprint(number.Decimal(f, number.MaxFractionDigits(2))), true
	}
	switch b := v.(type) {
	case bool:
		yes, no := "Yes", "No"
		if languageTag(lang) == language.German {
			yes, no = "Ja", "Nein"
		}
		if b {
			return yes, true
		}
		return no, true
	case string:
		return b, true
	}
	return fmt.Sprint(v), true
}

// FormatProperties returns the displayable properties sorted by key.
// Numbers are formatted for lang; square-meter areas become km².
func FormatProperties(props map[string]any, lang string) []Property {
	p := message.NewPrinter(languageTag(lang))
	keys := make([]string, 0, len(props))
	for k := range props {
		if !hiddenProperties[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Property, 0, len(keys))
	for _, k := range keys {
		val, ok := formatValue(p, k, props[k], lang)
		if !ok {
			continue
		}
		label := Humanize(k)
		if isArea(k) {
			label = strings.TrimSpace(strings.NewReplacer("Square Meters", "", "Square Meter", "").Replace(label))
		}
		out = append(out, Property{Key: k, Label: label, Value: val})
	}
	return out
}

// PopupTitle is "Cluster <id>" when the feature carries a cluster_id and
// fallback otherwise.
func PopupTitle(fallback string, props map[string]any) string {
	id, ok := props["cluster_id"]
	if !ok || id == nil {
		return fallback
	}
	if f, ok := toFloat(id); ok {
		return fmt.Sprintf("Cluster %d", int64(f))
	}
	return fmt.Sprintf("Cluster %v", id)
}

// PopupHTML renders the popup of one feature.
func PopupHTML(title string, props map[string]any, lang string) (string, error) {
	return templates.Default().Render("popup", struct {
		Title      string
		Properties []Property
	}{PopupTitle(title, props), FormatProperties(props, lang)})
}
