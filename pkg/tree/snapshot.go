package tree

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/odbsync/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

const malformedSnapshotTemplate = "The tree snapshot at %q could not be parsed. " +
	"Was it written by `odbsync tree`?\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

// rawNode is the wire form of both node kinds. The presence of Length is
// what makes an entry a file.
type rawNode struct {
	Name              string          `json:"Name"`
	ServerRelativeURL string          `json:"ServerRelativeUrl"`
	Length            json.RawMessage `json:"Length"`
	TimeLastModified  string          `json:"TimeLastModified"`
	Folders           json.RawMessage `json:"Folders"`
	Files             json.RawMessage `json:"Files"`
}

// Load reads the snapshot at path.
func Load(path string) (*Folder, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: path}
		}
		return nil, errors.WithContext(err, "read snapshot")
	}

	root, err := Parse(data)
	if err != nil {
		return nil, errors.NewFriendlyError(malformedSnapshotTemplate, path, err)
	}
	return root, nil
}

// Write saves the tree rooted at root to path.
func Write(path string, root *Folder) error {
	var buf bytes.Buffer
	if err := Encode(&buf, root); err != nil {
		return errors.WithContext(err, "encode")
	}

	if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Encode writes the tree as indented JSON. Non-ASCII names are written
// as-is.
func Encode(w io.Writer, root *Folder) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(root)
}

// Parse decodes a snapshot. The root must be a folder.
func Parse(data []byte) (*Folder, error) {
	node, err := decodeNode(data)
	if err != nil {
		return nil, err
	}

	root, ok := node.(*Folder)
	if !ok {
		return nil, errors.SchemaError{
			Kind:   errors.MalformedListing,
			Path:   node.GetServerRelativeURL(),
			Detail: "snapshot root is a file",
		}
	}
	return root, nil
}

// UnmarshalJSON lets a Folder be decoded with encoding/json directly.
func (f *Folder) UnmarshalJSON(data []byte) error {
	root, err := Parse(data)
	if err != nil {
		return err
	}
	*f = *root
	return nil
}

func decodeNode(data []byte) (Node, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if isPresent(raw.Length) {
		return decodeFile(raw)
	}

	folder := NewFolder(raw.Name, raw.ServerRelativeURL)
	if isPresent(raw.Folders) || isPresent(raw.Files) {
		folder.MarkExpanded()
	}
	if err := decodeChildren(folder, folder.Folders, raw.Folders); err != nil {
		return nil, errors.WithContext(err, "Folders")
	}
	if err := decodeChildren(folder, folder.Files, raw.Files); err != nil {
		return nil, errors.WithContext(err, "Files")
	}
	return folder, nil
}

func decodeFile(raw rawNode) (*File, error) {
	length, err := ParseLength(raw.Length)
	if err != nil {
		return nil, errors.SchemaError{
			Kind:   errors.MalformedListing,
			Path:   raw.ServerRelativeURL,
			Detail: err.Error(),
		}
	}

	var modTime time.Time
	if raw.TimeLastModified != "" {
		modTime, err = time.Parse(time.RFC3339, raw.TimeLastModified)
		if err != nil {
			return nil, errors.SchemaError{
				Kind:   errors.MalformedListing,
				Path:   raw.ServerRelativeURL,
				Detail: err.Error(),
			}
		}
	}

	return &File{
		Name:              raw.Name,
		ServerRelativeURL: raw.ServerRelativeURL,
		Length:            length,
		TimeLastModified:  modTime,
	}, nil
}

func decodeChildren(parent *Folder, set *Children, data json.RawMessage) error {
	if !isPresent(data) {
		return nil
	}

	return eachMember(data, func(key string, value json.RawMessage) error {
		child, err := decodeNode(value)
		if err != nil {
			return errors.WithContext(err, key)
		}

		// Entries are keyed by name, so the key stands in for a missing
		// Name field.
		switch child := child.(type) {
		case *Folder:
			if child.Name == "" {
				child.Name = key
			}
		case *File:
			if child.Name == "" {
				child.Name = key
			}
		}
		return parent.add(set, child)
	})
}

// eachMember calls fn for every member of the JSON object in data, in the
// order they appear. encoding/json maps don't keep that order.
func eachMember(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("expected an object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	// Consume the closing brace.
	_, err = dec.Token()
	return err
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) != 0 && string(raw) != "null"
}

// ParseLength reads a byte count that's encoded as either a JSON string or
// a JSON number.
func ParseLength(raw json.RawMessage) (uint64, error) {
	str := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
	}

	length, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, errors.WithContext(err, "parse Length")
	}
	return length, nil
}

// MarshalJSON writes the folder's fields followed by its children. The
// child collections are left out if the folder was never expanded.
func (f *Folder) MarshalJSON() ([]byte, error) {
	var obj objectWriter
	obj.field("Name", f.Name)
	obj.field("ServerRelativeUrl", f.ServerRelativeURL)
	if f.expanded {
		obj.field("Folders", f.Folders)
		obj.field("Files", f.Files)
	}
	return obj.bytes()
}

// MarshalJSON writes the file's fields. Length is written as a string,
// which is how the remote API reports it.
func (f *File) MarshalJSON() ([]byte, error) {
	var obj objectWriter
	obj.field("Name", f.Name)
	obj.field("ServerRelativeUrl", f.ServerRelativeURL)
	obj.field("Length", strconv.FormatUint(f.Length, 10))
	obj.field("TimeLastModified", f.TimeLastModified.Format(time.RFC3339Nano))
	return obj.bytes()
}

// MarshalJSON writes the children as an object keyed by name, in insertion
// order.
func (c *Children) MarshalJSON() ([]byte, error) {
	var obj objectWriter
	for _, name := range c.order {
		obj.field(name, c.byName[name])
	}
	return obj.bytes()
}

// objectWriter builds a JSON object whose members keep the order they were
// written in.
type objectWriter struct {
	buf     bytes.Buffer
	members int
	err     error
}

func (w *objectWriter) field(key string, value interface{}) {
	if w.err != nil {
		return
	}

	keyBytes, err := marshal(key)
	if err != nil {
		w.err = err
		return
	}
	valueBytes, err := marshal(value)
	if err != nil {
		w.err = errors.WithContext(err, key)
		return
	}

	if w.members == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.members++
	w.buf.Write(keyBytes)
	w.buf.WriteByte(':')
	w.buf.Write(valueBytes)
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.members == 0 {
		return []byte("{}"), nil
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// marshal is json.Marshal without the HTML escaping, so names containing
// '&' or '<' stay readable in the snapshot.
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
