package partitioner

import (
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const (
	charsetUTF8   = "utf-8"
	charsetLatin1 = "latin1"
)

// normalizeCharset folds the common spellings of UTF-8 and ISO-8859-1.
func normalizeCharset(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf8", "utf-8":
		return charsetUTF8
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1", "iso_8859-1", "8859-1":
		return charsetLatin1
	}
	return n
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch normalizeCharset(name) {
	case charsetUTF8:
		return nil, nil
	case charsetLatin1:
		return charmap.ISO8859_1, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fatalf(err, "unsupported charset: %s", name)
	}
	return enc, nil
}

// decodingReader converts r from charset to UTF-8.
func decodingReader(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// decodeLatin1 converts ISO-8859-1 bytes to a UTF-8 string.
func decodeLatin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
