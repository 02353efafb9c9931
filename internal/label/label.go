// Package label writes the feature class and label payload of a record.
//
// The label is the last field of every record and carries no length of its
// own: a reader knows where it ends only from the record's outer framing.
package label

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"

	"github.com/wegman-software/georender-go/internal/varint"
)

// Classifier maps a tag set to a feature class and label payload
// Implementations must be deterministic for a given tag order.
type Classifier interface {
	Classify(tags osm.Tags) (class uint64, label []byte)
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(tags osm.Tags) (uint64, []byte)

// Classify calls f(tags)
func (f ClassifierFunc) Classify(tags osm.Tags) (uint64, []byte) {
	return f(tags)
}

// EncodeAt copies label verbatim into buf at off and returns its length
func EncodeAt(label []byte, buf []byte, off int) int {
	if off < 0 || off+len(label) > len(buf) {
		panic(fmt.Sprintf("label: buffer too small: need %d bytes at offset %d, have %d", len(label), off, len(buf)))
	}
	return copy(buf[off:], label)
}

// Build assembles the label payload from name tags
// Every "name" or "name:<lang>" tag becomes a varint-prefixed "<lang>=<value>"
// entry (empty lang for plain "name"), in tag order. A zero length byte
// terminates the list, so an unnamed feature encodes as a single 0x00.
func Build(tags osm.Tags) []byte {
	var buf []byte
	for _, tag := range tags {
		lang, ok := nameLang(tag.Key)
		if !ok || tag.Value == "" {
			continue
		}
		entry := lang + "=" + tag.Value
		buf = varint.Append(buf, uint64(len(entry)))
		buf = append(buf, entry...)
	}
	return append(buf, 0x00)
}

// Entries splits a label payload built by Build back into lang -> text
func Entries(label []byte) (map[string]string, error) {
	out := make(map[string]string)
	for off := 0; off < len(label); {
		n, w := varint.Decode(label[off:])
		if w <= 0 {
			return nil, fmt.Errorf("label: bad entry length at offset %d", off)
		}
		off += w
		if n == 0 {
			return out, nil
		}
		if uint64(len(label)-off) < n {
			return nil, fmt.Errorf("label: entry at offset %d overruns payload", off)
		}
		entry := string(label[off : off+int(n)])
		off += int(n)
		lang, text, _ := strings.Cut(entry, "=")
		out[lang] = text
	}
	return nil, fmt.Errorf("label: missing terminator")
}

func nameLang(key string) (string, bool) {
	if key == "name" {
		return "", true
	}
	if lang, ok := strings.CutPrefix(key, "name:"); ok && lang != "" {
		return lang, true
	}
	return "", false
}
