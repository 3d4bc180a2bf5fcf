package output

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Metadata formats accepted by SaveMetadata.
const (
	MetaTXT   = "txt"
	MetaJSON  = "json"
	MetaEmbed = "embed"
)

// Metadata is one image's generation parameters.
type Metadata map[string]any

func (m Metadata) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveMetadata writes one metadata record per entry in every requested
// format. "txt" and "json" create side files named like the images; "embed"
// rewrites the already saved "{name}.{imageFormat}" in place. An empty dir or
// format list writes nothing.
func SaveMetadata(entries []Metadata, dir string, name Namer, formats []string, imageFormat string) error {
	if dir == "" || len(formats) == 0 {
		return nil
	}
	if name == nil {
		name = Indexed("data")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	for i, meta := range entries {
		base := filepath.Join(dir, name(i))
		for _, f := range formats {
			var err error
			switch strings.ToLower(strings.TrimSpace(f)) {
			case MetaTXT:
				err = os.WriteFile(base+".txt", meta.text(), 0o644)
			case MetaJSON:
				var b []byte
				if b, err = json.MarshalIndent(meta, "", "  "); err == nil {
					err = os.WriteFile(base+".json", b, 0o644)
				}
			case MetaEmbed:
				err = embedFile(base, imageFormat, meta)
			default:
				err = fmt.Errorf("unsupported metadata format %q", f)
			}
			if err != nil {
				return fmt.Errorf("metadata %s: %w", base, err)
			}
		}
	}
	return nil
}

func (m Metadata) text() []byte {
	var b bytes.Buffer
	for _, k := range m.keys() {
		fmt.Fprintf(&b, "%s: %v\n", k, m[k])
	}
	return b.Bytes()
}

func embedFile(base, imageFormat string, meta Metadata) error {
	format, err := NormalizeFormat(imageFormat)
	if err != nil {
		return err
	}
	path := base + "." + format
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatPNG:
		data, err = EmbedPNGText(data, meta)
	case FormatJPEG:
		data, err = EmbedJPEGComment(data, meta)
	default:
		err = fmt.Errorf("cannot embed metadata in %s files", format)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// EmbedPNGText inserts one text chunk per metadata key right after IHDR. Values
// that fit Latin-1 go in tEXt; anything else goes in an uncompressed iTXt chunk
// as UTF-8.
func EmbedPNGText(data []byte, meta Metadata) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.New("not a PNG file")
	}
	// IHDR is always first: 8 signature + 4 length + 4 type + 13 data + 4 crc
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(data) < ihdrEnd || string(data[12:16]) != "IHDR" {
		return nil, errors.New("PNG file has no IHDR chunk")
	}
	var out bytes.Buffer
	out.Write(data[:ihdrEnd])
	for _, k := range meta.keys() {
		keyword, ok := latin1(k)
		if !ok || len(keyword) == 0 || len(keyword) > 79 {
			return nil, fmt.Errorf("invalid PNG text keyword %q", k)
		}
		value := fmt.Sprint(meta[k])
		payload := append(keyword, 0)
		if text, ok := latin1(value); ok {
			writeChunk(&out, "tEXt", append(payload, text...))
			continue
		}
		// compression flag, compression method, empty language tag, empty translated keyword
		payload = append(payload, 0, 0, 0, 0)
		writeChunk(&out, "iTXt", append(payload, strings.ToValidUTF8(value, "\uFFFD")...))
	}
	out.Write(data[ihdrEnd:])
	return out.Bytes(), nil
}

// latin1 encodes s as ISO 8859-1, reporting false if s has a rune outside it.
func latin1(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF || r == utf8.RuneError {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, true
}

func writeChunk(w *bytes.Buffer, typ string, payload []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(payload)))
	w.Write(n[:])
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(payload)
	w.WriteString(typ)
	w.Write(payload)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	w.Write(n[:])
}

// EmbedJPEGComment inserts a COM segment holding the JSON-encoded metadata
// right after the SOI marker.
func EmbedJPEGComment(data []byte, meta Metadata) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("not a JPEG file")
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xFFFF-2 {
		return nil, fmt.Errorf("metadata too large for a JPEG comment: %d bytes", len(payload))
	}
	var out bytes.Buffer
	out.Write(data[:2])
	out.Write([]byte{0xFF, 0xFE})
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(payload)+2))
	out.Write(n[:])
	out.Write(payload)
	out.Write(data[2:])
	return out.Bytes(), nil
}
