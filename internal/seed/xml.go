// Package seed loads the ImageNet synset hierarchy into the record store.
package seed

import (
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/synset-tree/internal/records"
)

// ImageNetStructure is the root element of structure_released.xml.
type ImageNetStructure struct {
	XMLName     xml.Name `xml:"ImageNetStructure"`
	ReleaseData string   `xml:"releaseData"`
	Synset      *Synset  `xml:"synset"`
}

// Synset is one node of the hierarchy. Children nest as synset elements.
type Synset struct {
	WNID     string    `xml:"wnid,attr"`
	Words    string    `xml:"words,attr"`
	Gloss    string    `xml:"gloss,attr"`
	Children []*Synset `xml:"synset"`
}

// ParseImageNet decodes an ImageNet structure document and flattens it into
// records in depth-first pre-order, root synset included.
func ParseImageNet(r io.Reader) ([]records.Record, error) {
	var doc ImageNetStructure
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode ImageNet xml")
	}
	if doc.Synset == nil {
		return nil, errors.New("ImageNet xml has no root synset")
	}

	var out []records.Record
	flatten(doc.Synset, "", &out)
	return out, nil
}

// ParseFile parses the ImageNet document at path.
func ParseFile(path string) ([]records.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	defer f.Close() // nolint: errcheck

	rows, err := ParseImageNet(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", path)
	}
	return rows, nil
}

// flatten appends node and its descendants to out and returns node's size,
// which is the total number of its descendants.
func flatten(node *Synset, parentPath string, out *[]records.Record) int64 {
	name := strings.TrimSpace(node.Words)
	if parentPath != "" {
		name = parentPath + records.Separator + name
	}

	idx := len(*out)
	*out = append(*out, records.Record{Name: name})

	size := int64(len(node.Children))
	for _, child := range node.Children {
		size += flatten(child, name, out)
	}

	(*out)[idx].Size = size
	return size
}
