package partitioner

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/timmy/jobstore/internal/domain"
)

// xmlReader emits every child element of the document root as one record, wrapped in a
// copy of the root element. Output is UTF-8 whatever the document encoding was.
type xmlReader struct {
	counter  *countingReader
	decoder  *xml.Decoder
	charset  string
	root     *xml.StartElement
	finished bool
}

func newXMLReader(r io.Reader, charset string) (*xmlReader, error) {
	if _, err := lookupEncoding(charset); err != nil {
		return nil, err
	}
	counter := &countingReader{r: r}
	decoder := xml.NewDecoder(counter)
	decoder.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return decodingReader(input, label)
	}
	return &xmlReader{counter: counter, decoder: decoder, charset: charset}, nil
}

func (r *xmlReader) BytesRead() int64 {
	return r.counter.n
}

func (r *xmlReader) Next() (*Record, error) {
	if r.finished {
		return nil, io.EOF
	}
	if r.root == nil {
		if err := r.readRoot(); err != nil {
			return nil, err
		}
	}

	for {
		tok, err := r.decoder.RawToken()
		if err == io.EOF {
			return nil, fatalf(nil, "XML document ended before root element %s was closed", qualifiedName(r.root.Name))
		}
		if err != nil {
			return nil, fatalf(err, "XML data is not well-formed")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return r.readRecord(t.Copy())
		case xml.EndElement:
			if t.Name != r.root.Name {
				return nil, fatalf(nil, "XML data is not well-formed: unexpected end element %s", qualifiedName(t.Name))
			}
			r.finished = true
			if err := r.expectEnd(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
	}
}

// readRoot skips the prolog and checks the declared encoding against the job charset.
func (r *xmlReader) readRoot() error {
	for {
		tok, err := r.decoder.RawToken()
		if err == io.EOF {
			r.finished = true
			return fatalf(nil, "XML data has no root element")
		}
		if err != nil {
			return fatalf(err, "XML data is not well-formed")
		}
		switch t := tok.(type) {
		case xml.ProcInst:
			if t.Target == "xml" {
				if declared := declaredEncoding(t.Inst); declared != "" &&
					normalizeCharset(declared) != normalizeCharset(r.charset) {
					return fatalf(nil, "charset mismatch: specification says %s, document declares %s", r.charset, declared)
				}
			}
		case xml.StartElement:
			root := t.Copy()
			r.root = &root
			return nil
		}
	}
}

func (r *xmlReader) expectEnd() error {
	for {
		tok, err := r.decoder.RawToken()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fatalf(err, "XML data is not well-formed")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fatalf(nil, "XML data has more than one root element: %s", qualifiedName(t.Name))
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fatalf(nil, "XML data has text after the root element")
			}
		}
	}
}

// readRecord serializes start and everything up to its matching end element.
func (r *xmlReader) readRecord(start xml.StartElement) (*Record, error) {
	var (
		buf   bytes.Buffer
		stack = []xml.Name{start.Name}
		info  = newMarcXMLCollector()
	)
	writeStart(&buf, *r.root)
	writeStart(&buf, start)
	info.start(start)

	for len(stack) > 0 {
		tok, err := r.decoder.RawToken()
		if err == io.EOF {
			return nil, fatalf(nil, "XML document ended inside element %s", qualifiedName(stack[len(stack)-1]))
		}
		if err != nil {
			return nil, fatalf(err, "XML data is not well-formed")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
			writeStart(&buf, t)
			info.start(t)
		case xml.EndElement:
			if t.Name != stack[len(stack)-1] {
				return nil, fatalf(nil, "XML data is not well-formed: %s closed by %s",
					qualifiedName(stack[len(stack)-1]), qualifiedName(t.Name))
			}
			stack = stack[:len(stack)-1]
			buf.WriteString("</" + qualifiedName(t.Name) + ">")
			info.end(t)
		case xml.CharData:
			textEscaper.WriteString(&buf, string(t))
			info.text(t)
		case xml.Comment:
			buf.WriteString("<!--")
			buf.Write(t)
			buf.WriteString("-->")
		case xml.ProcInst:
			buf.WriteString("<?" + t.Target + " ")
			buf.Write(t.Inst)
			buf.WriteString("?>")
		}
	}
	buf.WriteString("</" + qualifiedName(r.root.Name) + ">")

	return &Record{
		Data:     buf.Bytes(),
		Type:     domain.ItemTypeGenericXML,
		Status:   domain.ItemStatusSuccess,
		Encoding: charsetUTF8,
		Info:     recordInfo(info.fields),
	}, nil
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#xA;", "\t", "&#x9;")
)

func writeStart(buf *bytes.Buffer, e xml.StartElement) {
	buf.WriteString("<" + qualifiedName(e.Name))
	for _, a := range e.Attr {
		buf.WriteString(" " + qualifiedName(a.Name) + `="`)
		attrEscaper.WriteString(buf, a.Value)
		buf.WriteString(`"`)
	}
	buf.WriteString(">")
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func declaredEncoding(inst []byte) string {
	s := string(inst)
	idx := strings.Index(s, "encoding=")
	if idx < 0 {
		return ""
	}
	s = s[idx+len("encoding="):]
	if len(s) < 2 {
		return ""
	}
	quote := s[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	end := strings.IndexByte(s[1:], quote)
	if end < 0 {
		return ""
	}
	return s[1 : end+1]
}

// marcXMLCollector picks up datafield 001 and 004 subfields of MARCXML style records.
type marcXMLCollector struct {
	fields   []marcField
	field    *marcField
	subfield *marcSubfield
}

func newMarcXMLCollector() *marcXMLCollector {
	return &marcXMLCollector{}
}

func (c *marcXMLCollector) start(e xml.StartElement) {
	switch e.Name.Local {
	case "datafield":
		tag := attrValue(e, "tag")
		if tag == "001" || tag == "004" {
			c.field = &marcField{Tag: tag}
		}
	case "subfield":
		if c.field != nil {
			c.subfield = &marcSubfield{Code: attrValue(e, "code")}
		}
	}
}

func (c *marcXMLCollector) text(data []byte) {
	if c.subfield != nil {
		c.subfield.Value += string(data)
	}
}

func (c *marcXMLCollector) end(e xml.EndElement) {
	switch e.Name.Local {
	case "subfield":
		if c.field != nil && c.subfield != nil {
			c.subfield.Value = strings.TrimSpace(c.subfield.Value)
			c.field.Subfields = append(c.field.Subfields, *c.subfield)
		}
		c.subfield = nil
	case "datafield":
		if c.field != nil {
			c.fields = append(c.fields, *c.field)
		}
		c.field = nil
	}
}

func attrValue(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
