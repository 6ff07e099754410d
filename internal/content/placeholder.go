package content

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// placeholderPrefix marks titles that still need translating.
func placeholderPrefix(lang string) string {
	return "[" + strings.ToUpper(lang) + "] "
}

// Mirror aligns other (the blocks of the other language) with src so both
// share the same ordered type sequence. A block of other is kept when it
// sits at an index where src has the same type; every other index gets a
// placeholder carrying src's shared payload. Surplus blocks of other are
// dropped. newID generates ids for placeholders.
func Mirror(src, other []Block, otherLang string, newID func() string) []Block {
	out := make([]Block, len(src))
	for i, s := range src {
		if i < len(other) && other[i].Type() == s.Type() {
			b := other[i]
			b.OrderIndex = i
			out[i] = b
			continue
		}
		out[i] = Block{
			ID:         newID(),
			StoryID:    s.StoryID,
			Language:   otherLang,
			OrderIndex: i,
			Title:      placeholderPrefix(otherLang) + s.Title,
			Payload:    s.Payload.Shared(),
			References: append([]string(nil), s.References...),
		}
	}
	return out
}

var converter = func() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return c
}()

// normalize converts HTML content to markdown and clears ContentFormat.
func normalize(b *Block) error {
	if b.Payload == nil {
		return fmt.Errorf("block %s: %w: no payload", b.ID, ErrInvalidBlock)
	}
	if b.ContentFormat == ContentFormatHTML {
		text, err := converter.ConvertString(b.Content)
		if err != nil {
			return fmt.Errorf("convert html: %w", err)
		}
		b.Content = strings.TrimSpace(text)
	}
	b.ContentFormat = ""
	return nil
}
