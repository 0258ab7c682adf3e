// Package patch regenerates the monitor option list of an issue template.
//
// The options region starts after a line holding only the marker (by default
// `options:`), optionally followed by a comment, and runs until a blank line,
// a line at or above the marker's indentation, or the end of the document.
// Marker lines inside block scalars (`value: |`) are ignored. Everything
// outside that region is copied through byte for byte.
package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/uptimeflare/monitorsync/pkg/types"
)

const (
	DefaultMarker      = "options:"
	DefaultLabelFormat = "{id} ({name})"
	DefaultAllLabel    = "All monitors"
	DefaultAllValue    = "all"
)

// Region is the option list body inside a template. Start is the first byte
// after the marker line and End the first byte of the terminator.
type Region struct {
	Start   int
	End     int
	Indent  string
	Newline string

	// markerBreak is what must follow the marker line when it ends the
	// document without a line break.
	markerBreak string
}

type Option func(*Patcher)

func WithMarker(marker string) Option {
	return func(p *Patcher) {
		if strings.TrimSpace(marker) != "" {
			p.marker = strings.TrimSpace(marker)
		}
	}
}

// WithAnchor restricts the marker search to the lines after the first
// occurrence of anchor, e.g. the id of the dropdown field.
func WithAnchor(anchor string) Option {
	return func(p *Patcher) {
		p.anchor = anchor
	}
}

// WithLabelFormat sets the label layout; {id} and {name} are substituted.
func WithLabelFormat(format string) Option {
	return func(p *Patcher) {
		if format != "" {
			p.labelFormat = format
		}
	}
}

// WithAllOption overrides the synthetic trailing option.
func WithAllOption(label, value string) Option {
	return func(p *Patcher) {
		if label != "" {
			p.allLabel = label
		}
		if value != "" {
			p.allValue = value
		}
	}
}

type Patcher struct {
	marker      string
	anchor      string
	labelFormat string
	allLabel    string
	allValue    string
	markerRe    *regexp.Regexp
}

func New(opts ...Option) *Patcher {
	p := &Patcher{
		marker:      DefaultMarker,
		labelFormat: DefaultLabelFormat,
		allLabel:    DefaultAllLabel,
		allValue:    DefaultAllValue,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.markerRe = regexp.MustCompile(`^([ \t]*)` + regexp.QuoteMeta(p.marker) + `(?:[ \t]+#[^\r\n]*)?[ \t]*\r?$`)
	return p
}

// Sentinel returns the value of the synthetic "all monitors" option.
func (p *Patcher) Sentinel() string {
	return p.allValue
}

// Render formats one two-line option per entry, in order, followed by the
// "all monitors" option. Lines are joined with "\n" and carry no trailing
// line break.
func (p *Patcher) Render(entries []types.MonitorEntry, indent string) string {
	lines := make([]string, 0, 2*(len(entries)+1))
	add := func(label, value string) {
		lines = append(lines,
			indent+"- label: "+quote(label),
			indent+"  value: "+quote(value),
		)
	}
	for _, entry := range entries {
		add(p.label(entry), entry.ID)
	}
	add(p.allLabel, p.allValue)
	return strings.Join(lines, "\n")
}

func (p *Patcher) label(entry types.MonitorEntry) string {
	return strings.NewReplacer("{id}", entry.ID, "{name}", entry.Name).Replace(p.labelFormat)
}

// Locate finds the options region of text.
func (p *Patcher) Locate(text string) (Region, error) {
	from := 0
	if p.anchor != "" {
		i := strings.Index(text, p.anchor)
		if i < 0 {
			return Region{}, &MissingTargetError{Marker: p.marker, Reason: fmt.Sprintf("anchor %q not found", p.anchor)}
		}
		nl := strings.IndexByte(text[i:], '\n')
		if nl < 0 {
			return Region{}, &MissingTargetError{Marker: p.marker, Reason: "options marker not found after anchor"}
		}
		from = i + nl + 1
	}

	lineEnd, indent, ok := p.findMarker(text, from)
	if !ok {
		return Region{}, &MissingTargetError{Marker: p.marker, Reason: "options marker not found"}
	}

	region := Region{
		Indent:  indent,
		Newline: "\n",
	}
	if text[lineEnd-1] == '\r' {
		region.Newline = "\r\n"
	}

	switch {
	case lineEnd < len(text):
		region.Start = lineEnd + 1
	case text[lineEnd-1] == '\r':
		region.Start = lineEnd
		region.markerBreak = "\n"
	default:
		region.Start = lineEnd
		region.markerBreak = region.Newline
	}

	end := region.Start
	for end < len(text) {
		stop, next := len(text), len(text)
		if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
			stop, next = end+nl, end+nl+1
		}
		if !inBody(text[end:stop], region.Indent) {
			break
		}
		end = next
	}
	region.End = end

	return region, nil
}

// blockScalarRe matches a line whose value opens a literal or folded block
// scalar, such as `value: |` or `- >-`.
var blockScalarRe = regexp.MustCompile(`^[ \t]*(?:-[ \t]+)?(?:[^#\s][^#]*?:[ \t]+)?[|>][1-9+-]*[ \t]*(?:#[^\r\n]*)?\r?$`)

// findMarker returns the end of the first marker line at or after from that
// is not part of a block scalar, excluding its '\n', and the marker's
// indentation.
func (p *Patcher) findMarker(text string, from int) (int, string, bool) {
	blockIndent := -1
	for pos := from; pos < len(text); {
		lineEnd, next := len(text), len(text)
		if nl := strings.IndexByte(text[pos:], '\n'); nl >= 0 {
			lineEnd, next = pos+nl, pos+nl+1
		}
		line := text[pos:lineEnd]
		lead := len(line) - len(strings.TrimLeft(line, " \t"))

		if blockIndent >= 0 {
			if strings.TrimSpace(line) == "" || lead > blockIndent {
				pos = next
				continue
			}
			blockIndent = -1
		}

		if m := p.markerRe.FindStringSubmatchIndex(line); m != nil {
			return pos + m[1], line[m[2]:m[3]], true
		}
		if blockScalarRe.MatchString(line) {
			blockIndent = lead
		}
		pos = next
	}
	return 0, "", false
}

// Patch returns text with its options region replaced by the rendered
// entries. The result does not depend on what the region held before, so
// patching twice with the same entries equals patching once.
func (p *Patcher) Patch(text string, entries []types.MonitorEntry) (string, Region, error) {
	region, err := p.Locate(text)
	if err != nil {
		return text, Region{}, err
	}

	block := p.Render(entries, region.Indent+"  ")
	if region.Newline != "\n" {
		block = strings.ReplaceAll(block, "\n", region.Newline)
	}

	var b strings.Builder
	b.Grow(len(text) + len(block))
	b.WriteString(text[:region.Start])
	b.WriteString(region.markerBreak)
	b.WriteString(block)
	b.WriteString(region.Newline)
	b.WriteString(text[region.End:])
	return b.String(), region, nil
}

// inBody reports whether line continues the option list of a marker
// indented by markerIndent.
func inBody(line, markerIndent string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	lead := len(line) - len(strings.TrimLeft(line, " \t"))
	if lead > len(markerIndent) {
		return true
	}
	// compact sequences put the dashes level with the key
	return lead == len(markerIndent) && strings.HasPrefix(trimmed, "- ")
}

// quote produces a double-quoted scalar; Go escapes are a subset of the
// escapes YAML accepts in double-quoted strings. Invalid UTF-8 is replaced
// first, since YAML reads a \xNN escape as a code point, not a byte.
func quote(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return strconv.Quote(s)
}
