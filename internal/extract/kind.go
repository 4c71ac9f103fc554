package extract

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the closed set of content kinds the extractor recognizes.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
	KindText
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	case KindText:
		return "text"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Document is a raw upload with its sniffed content kind.
type Document struct {
	Data []byte
	Kind Kind
	MIME string
}

// Sniff classifies data by its leading signature bytes. Declared content types
// and file names are not consulted.
func Sniff(data []byte) Document {
	doc := Document{Data: data, Kind: KindUnknown}
	if len(data) == 0 {
		return doc
	}

	mt := mimetype.Detect(data)
	doc.MIME = mt.String()

	switch {
	case mt.Is("application/pdf"):
		doc.Kind = KindPDF
	case strings.HasPrefix(mt.String(), "image/"):
		doc.Kind = KindImage
	case strings.HasPrefix(mt.String(), "text/"):
		doc.Kind = KindText
	default:
		doc.Kind = KindOther
	}
	return doc
}
