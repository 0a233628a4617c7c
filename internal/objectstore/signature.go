package objectstore

import (
	"bytes"
	"io"

	"github.com/disintegration/imaging"
)

// magicSignatures maps the declared MIME types the upload handler sniffs against their known leading bytes. Only the
// image formats the spec calls out (PNG/JPEG/GIF/WebP) are checked; every other content type passes through
// unexamined.
var magicSignatures = map[string][]byte{
	"image/png":  {0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A},
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/gif":  {'G', 'I', 'F', '8'},
}

// webpRIFFHeader and webpFormatTag are the two fixed fields of a WebP container: "RIFF" at offset 0 and "WEBP" at
// offset 8, with a 4-byte little-endian size field between them.
const (
	webpRIFFHeader = "RIFF"
	webpFormatTag  = "WEBP"
)

// SignatureMatches reports whether header (the first bytes of an upload) begins with the magic bytes expected for
// declaredContentType. Content types the store doesn't recognise always match (nothing to check against); this is a
// light, non-authoritative check per §4.8 — mismatches are logged by the caller, never rejected.
func SignatureMatches(declaredContentType string, header []byte) bool {
	if sig, ok := magicSignatures[declaredContentType]; ok {
		return bytes.HasPrefix(header, sig)
	}
	if declaredContentType == "image/webp" {
		return len(header) >= 12 &&
			bytes.HasPrefix(header, []byte(webpRIFFHeader)) &&
			bytes.Equal(header[8:12], []byte(webpFormatTag))
	}
	return true
}

// ConfirmDecodable attempts to decode r as an image, confirming the magic-byte sniff actually yielded a usable
// image rather than a truncated or spoofed header. It is best-effort: callers log a failure here, they don't reject
// the upload on it.
func ConfirmDecodable(r io.Reader) error {
	_, err := imaging.Decode(r)
	return err
}
