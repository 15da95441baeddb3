package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Entries maps a benchmark group name to its runs, keeping the order in
// which groups first appeared. The zero value is ready to use.
//
// Runs decoded from a document remember their source bytes. Encoding writes
// an unchanged run back exactly as it was read, including fields the model
// does not know about.
type Entries struct {
	order  []string
	groups map[string][]Entry
	source map[string][]sourceEntry
}

type sourceEntry struct {
	raw   json.RawMessage
	entry Entry
}

// NewEntries builds Entries from ordered group names and their runs
func NewEntries(names []string, groups map[string][]Entry) Entries {
	var e Entries
	for _, name := range names {
		e.Set(name, groups[name])
	}
	return e
}

// Names returns the group names in file order
func (e *Entries) Names() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Len returns the number of groups
func (e *Entries) Len() int {
	return len(e.order)
}

// Has reports whether the group exists
func (e *Entries) Has(name string) bool {
	_, ok := e.groups[name]
	return ok
}

// Get returns the runs of a group, nil if absent
func (e *Entries) Get(name string) []Entry {
	return e.groups[name]
}

// Set replaces the runs of a group, creating it at the end if needed
func (e *Entries) Set(name string, entries []Entry) {
	if e.groups == nil {
		e.groups = make(map[string][]Entry)
	}
	if _, ok := e.groups[name]; !ok {
		e.order = append(e.order, name)
	}
	if entries == nil {
		entries = []Entry{}
	}
	e.groups[name] = entries
}

// Clone returns a copy whose groups can be replaced without affecting e
func (e *Entries) Clone() Entries {
	out := Entries{
		order:  e.Names(),
		groups: make(map[string][]Entry, len(e.groups)),
		source: e.source,
	}
	for name, entries := range e.groups {
		out.groups[name] = entries
	}
	return out
}

// Append adds a run to the end of a group
func (e *Entries) Append(name string, entry Entry) {
	e.Set(name, append(e.Get(name), entry))
}

// MarshalJSON writes groups in their recorded order
func (e Entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.encode(&buf, "", ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeIndent writes the groups as an indented object in the layout of
// JSON.stringify. The opening brace is assumed to sit on a line starting
// with prefix. Kept runs are copied verbatim, so their layout only matches
// when the source document was written with the same indent.
func (e *Entries) EncodeIndent(buf *bytes.Buffer, prefix, indent string) error {
	return e.encode(buf, prefix, indent)
}

func (e *Entries) encode(buf *bytes.Buffer, prefix, indent string) error {
	if len(e.order) == 0 {
		buf.WriteString("{}")
		return nil
	}

	buf.WriteByte('{')
	for i, name := range e.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, prefix+indent, indent)
		key, err := QuoteString(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if indent != "" {
			buf.WriteByte(' ')
		}
		if err := e.encodeGroup(buf, name, prefix+indent, indent); err != nil {
			return err
		}
	}
	newline(buf, prefix, indent)
	buf.WriteByte('}')
	return nil
}

func (e *Entries) encodeGroup(buf *bytes.Buffer, name, prefix, indent string) error {
	runs := e.groups[name]
	if len(runs) == 0 {
		buf.WriteString("[]")
		return nil
	}

	src := e.source[name]
	next := 0

	buf.WriteByte('[')
	for i, entry := range runs {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, prefix+indent, indent)
		if k := matchSource(src, next, entry); k >= 0 {
			buf.Write(src[k].raw)
			next = k + 1
			continue
		}
		if err := encodeEntry(buf, entry, prefix+indent, indent); err != nil {
			return fmt.Errorf("group %q run %d: %w", name, i, err)
		}
	}
	newline(buf, prefix, indent)
	buf.WriteByte(']')
	return nil
}

func newline(buf *bytes.Buffer, prefix, indent string) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(prefix)
}

func encodeEntry(buf *bytes.Buffer, entry Entry, prefix, indent string) error {
	if entry.Benches == nil {
		entry.Benches = []Bench{}
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent(prefix, indent)
	}
	if err := enc.Encode(entry); err != nil {
		return err
	}
	buf.Write(rawLineSeparators(bytes.TrimSuffix(out.Bytes(), []byte("\n"))))
	return nil
}

// QuoteString encodes s as a JSON string the way JSON.stringify does: no
// HTML escaping, U+2028 and U+2029 written raw.
func QuoteString(s string) ([]byte, error) {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return rawLineSeparators(bytes.TrimSuffix(out.Bytes(), []byte("\n"))), nil
}

// rawLineSeparators undoes the \u2028 and \u2029 escapes encoding/json
// always writes. Escape pairs are copied whole, so `\\u2028` text stays.
func rawLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 == len(b) {
			out = append(out, b[i])
			continue
		}
		if b[i+1] == 'u' && i+6 <= len(b) {
			switch string(b[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

// matchSource finds the first source run at or after from that decodes to
// entry, or -1. Runs keep their relative order, so trimmed groups still match.
func matchSource(src []sourceEntry, from int, entry Entry) int {
	for k := from; k < len(src); k++ {
		if reflect.DeepEqual(src[k].entry, entry) {
			return k
		}
	}
	return -1
}

// UnmarshalJSON reads groups keeping their order in the document
func (e *Entries) UnmarshalJSON(data []byte) error {
	*e = Entries{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("entries: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("entries: expected group name, got %v", tok)
		}

		var raws []json.RawMessage
		if err := dec.Decode(&raws); err != nil {
			return fmt.Errorf("entries: group %q: %w", name, err)
		}

		entries := make([]Entry, len(raws))
		src := make([]sourceEntry, len(raws))
		for i, raw := range raws {
			if err := json.Unmarshal(raw, &entries[i]); err != nil {
				return fmt.Errorf("entries: group %q run %d: %w", name, i, err)
			}
			// a separate copy, so edits made through Get are detected
			if err := json.Unmarshal(raw, &src[i].entry); err != nil {
				return err
			}
			src[i].raw = raw
		}
		e.Set(name, entries)
		if e.source == nil {
			e.source = make(map[string][]sourceEntry)
		}
		e.source[name] = src
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
