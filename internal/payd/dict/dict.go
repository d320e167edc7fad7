// Package dict implements the ordered name/value dictionary that carries
// request and response fields through the payd daemon.
//
// Every request a frontend sends is parsed into one Dict, handlers read and
// augment it, and the response writer walks it again to echo fields back.
// Three invariants make that round trip predictable:
//
// Insertion Order
// ===============
//
// Fields are kept in the order they were first added. Responses echo fields
// in that same order, so a frontend always gets its data back in the shape
// it sent it. Replacing a value never moves the field.
//
// Unique Names
// ============
//
// A name appears at most once. Append refuses duplicates (the wire reader
// turns that into a protocol violation); Set replaces in place.
//
// Canonical Names
// ===============
//
// Wire names are normalized before storage: each hyphen-separated segment
// gets an initial capital with the rest lowered ("content-type" becomes
// "Content-Type"). Text between matched square brackets passes through
// verbatim, which keeps caller-chosen subkeys intact ("mEtA[CampaignID]"
// becomes "Meta[CampaignID]"). Handlers rely on this: they look fields up
// by their canonical spelling only.
//
// Names starting with an underscore ("_amount", "_timestamp") are internal
// fields. They can only be planted by handler code, never by the wire reader,
// and the capitalized-echo rule in the response writer skips them.
package dict

import "errors"

var (
	ErrDuplicateName = errors.New("dict: duplicate field name")
	ErrNoFields      = errors.New("dict: no fields to extend")
)

// Item is a single name/value pair. Values may contain embedded newlines;
// the wire layer renders those as continuation lines.
type Item struct {
	Name  string
	Value string
}

// Dict is an insertion-ordered collection of uniquely named fields.
// It is not safe for concurrent use; each connection owns its own Dict.
type Dict struct {
	items []Item
	index map[string]int
}

// New returns an empty dictionary.
func New() *Dict {
	return &Dict{index: make(map[string]int)}
}

// Len returns the number of fields.
func (d *Dict) Len() int {
	return len(d.items)
}

// Has reports whether a field with the given name exists.
func (d *Dict) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Get returns the value for name, or the empty string if the field is
// absent. Protocol semantics treat absent and empty the same way, so
// handlers rarely need Has.
func (d *Dict) Get(name string) string {
	if i, ok := d.index[name]; ok {
		return d.items[i].Value
	}
	return ""
}

// Append adds a new field at the end. It fails with ErrDuplicateName if the
// name is already present; the wire reader reports that as a protocol
// violation rather than silently merging values.
func (d *Dict) Append(name, value string) error {
	if _, ok := d.index[name]; ok {
		return ErrDuplicateName
	}
	d.index[name] = len(d.items)
	d.items = append(d.items, Item{Name: name, Value: value})
	return nil
}

// Set stores a value under name, replacing in place if the field exists and
// appending otherwise. Replacement keeps the field's original position so
// the echo order stays stable.
func (d *Dict) Set(name, value string) {
	if i, ok := d.index[name]; ok {
		d.items[i].Value = value
		return
	}
	d.index[name] = len(d.items)
	d.items = append(d.items, Item{Name: name, Value: value})
}

// ExtendLast appends a continuation fragment to the most recently added
// field, joined with a newline. The wire reader calls this for folded
// continuation lines. Fails with ErrNoFields when no field exists yet,
// which the reader reports as a stray continuation.
func (d *Dict) ExtendLast(fragment string) error {
	if len(d.items) == 0 {
		return ErrNoFields
	}
	last := &d.items[len(d.items)-1]
	last.Value = last.Value + "\n" + fragment
	return nil
}

// Delete removes a field. Later fields shift down one position; lookups are
// reindexed. Returns true if the field existed.
func (d *Dict) Delete(name string) bool {
	i, ok := d.index[name]
	if !ok {
		return false
	}
	d.items = append(d.items[:i], d.items[i+1:]...)
	delete(d.index, name)
	for j := i; j < len(d.items); j++ {
		d.index[d.items[j].Name] = j
	}
	return true
}

// Items returns a copy of all fields in insertion order.
func (d *Dict) Items() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

// Clone returns an independent copy of the dictionary.
func (d *Dict) Clone() *Dict {
	c := &Dict{
		items: make([]Item, len(d.items)),
		index: make(map[string]int, len(d.index)),
	}
	copy(c.items, d.items)
	for k, v := range d.index {
		c.index[k] = v
	}
	return c
}

// CloneCapitalized returns a copy holding only the capitalized fields, in
// order. This is what the session and preorder stores persist: internal
// fields never leave the request they were computed for.
func (d *Dict) CloneCapitalized() *Dict {
	c := New()
	for _, it := range d.items {
		if IsCapitalized(it.Name) {
			c.Set(it.Name, it.Value)
		}
	}
	return c
}

// IsCapitalized reports whether a field name starts with an ASCII uppercase
// letter. Only such fields are echoed to clients; internal fields (leading
// underscore) and anything else stay server-side.
func IsCapitalized(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// CanonicalName normalizes a wire field name: each hyphen-separated segment
// is written with an initial capital and the rest lowered. Only ASCII
// letters are mapped. Text following a '[' is copied verbatim up to and
// including the matching ']'; an unmatched '[' leaves the remainder of the
// name untouched.
func CanonicalName(name string) string {
	b := []byte(name)
	inBracket := false
	segStart := true

	for i := 0; i < len(b); i++ {
		c := b[i]
		if inBracket {
			if c == ']' {
				inBracket = false
			}
			continue
		}
		switch {
		case c == '[':
			inBracket = true
		case c == '-':
			segStart = true
		case segStart:
			if c >= 'a' && c <= 'z' {
				b[i] = c - ('a' - 'A')
			}
			segStart = false
		default:
			if c >= 'A' && c <= 'Z' {
				b[i] = c + ('a' - 'A')
			}
		}
	}

	return string(b)
}
