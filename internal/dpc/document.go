package dpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("entry not found")
	// ErrExists is returned by Add when the path already exists.
	ErrExists = errors.New("entry already exists")
	// ErrTypeMismatch is returned by Update when the new value cannot
	// replace the existing one in place.
	ErrTypeMismatch = errors.New("entry type mismatch")
	// ErrNotBlock is returned when a path crosses a scalar.
	ErrNotBlock = errors.New("entry is not a block")
)

// Document is a parsed .dpc tree.
type Document struct {
	doc  *yaml.Node // document node, carries file level comments
	root *yaml.Node // mapping node
}

// New returns an empty document.
func New() *Document {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	return &Document{
		doc:  &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}},
		root: root,
	}
}

// Parse parses .dpc text. Empty input yields an empty document.
func Parse(data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary config: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return New(), nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse dictionary config: top level is not a block")
	}
	return &Document{doc: &doc, root: root}, nil
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// mapGet returns the key and value nodes for name within mapping m.
func mapGet(m *yaml.Node, name string) (int, *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return i, m.Content[i+1]
		}
	}
	return -1, nil
}

func (d *Document) lookup(path string) (*yaml.Node, error) {
	n := d.root
	for _, seg := range splitPath(path) {
		if n.Kind != yaml.MappingNode {
			return nil, ErrNotBlock
		}
		_, v := mapGet(n, seg)
		if v == nil {
			return nil, ErrNotFound
		}
		n = v
	}
	return n, nil
}

// parent walks to the mapping holding the last path segment, creating
// intermediate blocks when create is set.
func (d *Document) parent(path string, create bool) (*yaml.Node, string, error) {
	segs := splitPath(path)
	n := d.root
	for _, seg := range segs[:len(segs)-1] {
		if n.Kind != yaml.MappingNode {
			return nil, "", ErrNotBlock
		}
		_, v := mapGet(n, seg)
		if v == nil {
			if !create {
				return nil, "", ErrNotFound
			}
			v = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: seg}, v)
		}
		n = v
	}
	if n.Kind != yaml.MappingNode {
		return nil, "", ErrNotBlock
	}
	return n, segs[len(segs)-1], nil
}

// Exists reports whether path names an entry.
func (d *Document) Exists(path string) bool {
	_, err := d.lookup(path)
	return err == nil
}

// String returns the scalar at path.
func (d *Document) String(path string) (string, error) {
	n, err := d.lookup(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%s: %w", path, ErrTypeMismatch)
	}
	return n.Value, nil
}

// Get returns the scalar at path, or def when it is absent.
func (d *Document) Get(path, def string) string {
	s, err := d.String(path)
	if err != nil {
		return def
	}
	return s
}

// Bool returns the boolean at path, or def when it is absent.
// Numeric scalars are true when non-zero.
func (d *Document) Bool(path string, def bool) (bool, error) {
	n, err := d.lookup(path)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("%s: %w", path, err)
	}
	if n.Kind != yaml.ScalarNode {
		return def, fmt.Errorf("%s: %w", path, ErrTypeMismatch)
	}
	var b bool
	if n.Decode(&b) == nil {
		return b, nil
	}
	if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
		return i != 0, nil
	}
	return def, fmt.Errorf("%s: %q is not a boolean: %w", path, n.Value, ErrTypeMismatch)
}

// Int returns the integer at path, or def when it is absent.
func (d *Document) Int(path string, def int) (int, error) {
	n, err := d.lookup(path)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("%s: %w", path, err)
	}
	if n.Kind != yaml.ScalarNode {
		return def, fmt.Errorf("%s: %w", path, ErrTypeMismatch)
	}
	i, err := strconv.ParseInt(strings.TrimSpace(n.Value), 0, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer: %w", path, n.Value, ErrTypeMismatch)
	}
	return int(i), nil
}

// EntryNames returns the names directly below the block at path, in
// document order. A missing block has no entries.
func (d *Document) EntryNames(path string) []string {
	n, err := d.lookup(path)
	if err != nil || n.Kind != yaml.MappingNode {
		return nil
	}
	names := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		names = append(names, n.Content[i].Value)
	}
	return names
}

func scalar(v any) (*yaml.Node, error) {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("value %v is not a scalar", v)
	}
	return n, nil
}

// Add creates a scalar entry, creating missing parent blocks.
func (d *Document) Add(path string, v any) error {
	val, err := scalar(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	m, name, err := d.parent(path, true)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, old := mapGet(m, name); old != nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, val)
	return nil
}

// AddBlock creates an empty block, creating missing parent blocks.
func (d *Document) AddBlock(path string) error {
	m, name, err := d.parent(path, true)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, old := mapGet(m, name); old != nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
		&yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"})
	return nil
}

// Update replaces an existing scalar with a value of the same YAML type.
func (d *Document) Update(path string, v any) error {
	val, err := scalar(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	old, err := d.lookup(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if old.Kind != yaml.ScalarNode || old.ShortTag() != val.ShortTag() {
		return fmt.Errorf("%s: %w", path, ErrTypeMismatch)
	}
	old.Value = val.Value
	old.Style = val.Style
	return nil
}

// Replace swaps whatever is at path for a new scalar, whatever its old type
// or kind. The entry keeps its position. The document is unchanged on error.
func (d *Document) Replace(path string, v any) error {
	val, err := scalar(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	m, name, err := d.parent(path, false)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	i, _ := mapGet(m, name)
	if i < 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	m.Content[i+1] = val
	return nil
}

// Set updates path in place when types agree, replaces it when they do not,
// and adds it when it is absent.
func (d *Document) Set(path string, v any) error {
	err := d.Update(path, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return d.Add(path, v)
	case errors.Is(err, ErrTypeMismatch):
		return d.Replace(path, v)
	default:
		return err
	}
}

// Remove deletes the entry (scalar or block) at path.
func (d *Document) Remove(path string) error {
	m, name, err := d.parent(path, false)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	i, _ := mapGet(m, name)
	if i < 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	m.Content = append(m.Content[:i], m.Content[i+2:]...)
	return nil
}

// Render returns the document as .dpc text.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.doc); err != nil {
		return nil, fmt.Errorf("failed to render dictionary config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render dictionary config: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderJSON returns the document as a JSON object, keeping entry order.
func (d *Document) RenderJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, d.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(n.Content[i].Value)
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return fmt.Errorf("failed to decode %q: %w", n.Value, err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			// timestamps and other non-JSON scalars fall back to their text
			b, _ = json.Marshal(n.Value)
		}
		buf.Write(b)
	default:
		buf.WriteString("null")
	}
	return nil
}
