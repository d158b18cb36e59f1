// Package markup converts chat text with inline emotion markers such as
// "(whisper)" or "(breath)" into a speech-synthesis markup document.
package markup

import (
	"bytes"
	"encoding/xml"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

const (
	openDoc  = "<speak>"
	closeDoc = "</speak>"
)

// effect is one entry of the emotion table. A standalone effect has no
// close tag and never changes the currently open effect.
type effect struct {
	open  string
	close string
}

func (e effect) paired() bool { return e.close != "" }

// emotions is the recognized marker table. Lookups are case-insensitive.
var emotions = map[string]effect{
	"high":    {`<prosody pitch="+30%">`, `</prosody>`},
	"higher":  {`<amazon:effect vocal-tract-length="-80%">`, `</amazon:effect>`},
	"deep":    {`<prosody pitch="-30%">`, `</prosody>`},
	"deeper":  {`<amazon:effect vocal-tract-length="+80%">`, `</amazon:effect>`},
	"drunk":   {`<prosody rate="x-slow">`, `</prosody>`},
	"asthma":  {`<amazon:auto-breaths volume="x-loud" frequency="x-high" duration="x-short">`, `</amazon:auto-breaths>`},
	"soft":    {`<prosody volume="x-soft">`, `</prosody>`},
	"loud":    {`<prosody volume="x-loud">`, `</prosody>`},
	"whisper": {`<amazon:effect name="whispered">`, `</amazon:effect>`},
	"breath":  {open: `<amazon:breath duration="x-long" volume="x-loud"/>`},
}

// marker matches a single word in parentheses. Letters and digits of
// any script count as word characters.
var marker = regexp.MustCompile(`\(([\p{L}\p{N}_]+)\)`)

// Emotions returns the recognized marker names, sorted.
func Emotions() []string {
	names := make([]string, 0, len(emotions))
	for name := range emotions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Format builds the markup document for text. Recognized markers are
// replaced by their tags; unrecognized markers are dropped. Paired effects
// never nest: opening one closes the previous. The result is always wrapped
// in a single <speak> element.
func Format(text string) string {
	var b strings.Builder
	b.WriteString(openDoc)

	var current *effect
	last := 0
	for _, m := range marker.FindAllStringSubmatchIndex(text, -1) {
		writeLiteral(&b, text[last:m[0]])
		last = m[1]

		e, ok := emotions[strings.ToLower(text[m[2]:m[3]])]
		if !ok {
			continue
		}
		if !e.paired() {
			b.WriteString(e.open)
			continue
		}
		if current != nil {
			b.WriteString(current.close)
		}
		b.WriteString(e.open)
		current = &e
	}
	writeLiteral(&b, text[last:])

	if current != nil {
		b.WriteString(current.close)
	}
	b.WriteString(closeDoc)
	return b.String()
}

// Classify reports whether doc carries markup beyond the outer element.
// Literal text is escaped by Format, so any '<' in the body is a tag.
func Classify(doc string) domain.TextType {
	if strings.Contains(body(doc), "<") {
		return domain.TextSSML
	}
	return domain.TextPlain
}

// Payload returns what should be sent to the synthesis backend for doc:
// the whole document when it carries markup, the unwrapped literal text
// otherwise.
func Payload(doc string) (string, domain.TextType) {
	if Classify(doc) == domain.TextSSML {
		return doc, domain.TextSSML
	}
	return html.UnescapeString(body(doc)), domain.TextPlain
}

// Strip removes every tag from doc and returns the literal text. Used by
// backends that cannot interpret markup.
func Strip(doc string) string {
	var b strings.Builder
	depth := 0
	for _, r := range doc {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}

func body(doc string) string {
	doc = strings.TrimSpace(doc)
	doc = strings.TrimPrefix(doc, openDoc)
	return strings.TrimSuffix(doc, closeDoc)
}

func writeLiteral(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	b.Write(buf.Bytes())
}
