// Package extract reads the monitor declarations out of an UptimeFlare-style
// configuration document without parsing the whole language.
//
// The document only has to contain a collection such as
//
//	monitors: [
//	  { id: 'foo_monitor', name: 'My API Monitor', headers: { ... } },
//	]
//
// Each object literal directly inside the collection is one record; its
// top-level id and name string fields become a MonitorEntry.
package extract

import (
	"strings"

	"github.com/uptimeflare/monitorsync/pkg/types"
)

const (
	DefaultCollectionKey = "monitors"
	DefaultIDKey         = "id"
	DefaultNameKey       = "name"
)

// Region delimits the collection: Start is the offset of the opening
// bracket and End the offset of its balancing closer.
type Region struct {
	Start int
	End   int
}

// Contains reports whether offset lies strictly inside the region.
func (r Region) Contains(offset int) bool {
	return r.Start < offset && offset < r.End
}

// SkippedRecord describes a record that did not yield an entry.
type SkippedRecord struct {
	Offset int
	Pos    Position
	Reason string
}

type Result struct {
	Region  Region
	Entries types.MonitorCollection
	Skipped []SkippedRecord
}

type Option func(*Extractor)

func WithCollectionKey(key string) Option {
	return func(e *Extractor) {
		if key != "" {
			e.collectionKey = key
		}
	}
}

func WithIDKey(key string) Option {
	return func(e *Extractor) {
		if key != "" {
			e.idKey = key
		}
	}
}

func WithNameKey(key string) Option {
	return func(e *Extractor) {
		if key != "" {
			e.nameKey = key
		}
	}
}

type Extractor struct {
	collectionKey string
	idKey         string
	nameKey       string
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		collectionKey: DefaultCollectionKey,
		idKey:         DefaultIDKey,
		nameKey:       DefaultNameKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the entries of text using the default field names.
func Extract(text string) (types.MonitorCollection, error) {
	res, err := New().Extract(text)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

type record struct {
	start   int
	id      string
	name    string
	hasID   bool
	hasName bool
}

// Extract locates the collection and returns its records in declaration
// order. Only the first occurrence of the collection marker is considered.
func (e *Extractor) Extract(text string) (Result, error) {
	lx := newLexer(text)

	open, ok := e.findCollection(lx)
	if !ok {
		return Result{}, &MissingRegionError{Key: e.collectionKey, Reason: "collection marker not found"}
	}

	var (
		res   = Result{Region: Region{Start: open.start}}
		depth int
		rec   *record

		// key/value detection inside a record, at record depth only
		key      string
		haveKey  bool
		afterKey bool
	)

	for {
		tok := lx.next()
		if tok.unterminated {
			return Result{}, &MissingRegionError{
				Key:    e.collectionKey,
				Reason: "unterminated string literal",
				Pos:    positionAt(text, tok.start),
			}
		}

		if rec != nil && depth == 1 {
			switch {
			case afterKey && tok.kind == tokenString:
				e.assign(rec, key, tok.value)
				haveKey, afterKey = false, false
				continue
			case haveKey && !afterKey && tok.kind == tokenColon:
				afterKey = true
				continue
			case !afterKey && (tok.kind == tokenIdent || tok.kind == tokenString):
				key, haveKey = tok.value, true
				continue
			default:
				haveKey, afterKey = false, false
			}
		}

		switch tok.kind {
		case tokenEOF:
			return Result{}, &MissingRegionError{
				Key:    e.collectionKey,
				Reason: "collection is never closed",
				Pos:    positionAt(text, open.start),
			}
		case tokenOpenBracket:
			depth++
		case tokenOpenBrace:
			if depth == 0 {
				rec = &record{start: tok.start}
			}
			depth++
		case tokenCloseBracket:
			if depth == 0 {
				res.Region.End = tok.start
				return res, nil
			}
			depth--
		case tokenCloseBrace:
			if depth == 0 {
				return Result{}, &MissingRegionError{
					Key:    e.collectionKey,
					Reason: "unbalanced '}' inside collection",
					Pos:    positionAt(text, tok.start),
				}
			}
			depth--
			if depth == 0 && rec != nil {
				e.finish(text, rec, &res)
				rec = nil
			}
		}
	}
}

// findCollection advances lx past the first `<key>: [` sequence and returns
// the bracket token.
func (e *Extractor) findCollection(lx *lexer) (token, bool) {
	var prev, prevKey token
	for {
		tok := lx.next()
		switch tok.kind {
		case tokenEOF:
			return token{}, false
		case tokenOpenBracket:
			if prev.kind == tokenColon &&
				(prevKey.kind == tokenIdent || prevKey.kind == tokenString) &&
				prevKey.value == e.collectionKey {
				return tok, true
			}
		}
		prevKey, prev = prev, tok
	}
}

// assign keeps the first value seen for each field of a record.
func (e *Extractor) assign(rec *record, key, value string) {
	switch key {
	case e.idKey:
		if !rec.hasID {
			rec.id, rec.hasID = value, true
		}
	case e.nameKey:
		if !rec.hasName {
			rec.name, rec.hasName = value, true
		}
	}
}

func (e *Extractor) finish(text string, rec *record, res *Result) {
	if rec.id != "" && rec.name != "" {
		res.Entries = append(res.Entries, types.MonitorEntry{ID: rec.id, Name: rec.name})
		return
	}

	var missing []string
	if rec.id == "" {
		missing = append(missing, describe(e.idKey, rec.hasID))
	}
	if rec.name == "" {
		missing = append(missing, describe(e.nameKey, rec.hasName))
	}
	res.Skipped = append(res.Skipped, SkippedRecord{
		Offset: rec.start,
		Pos:    positionAt(text, rec.start),
		Reason: strings.Join(missing, ", "),
	})
}

func describe(key string, present bool) string {
	if present {
		return "empty " + key
	}
	return "missing " + key
}
