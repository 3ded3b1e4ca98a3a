package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownFormat      = errors.New("unknown codec format")
	ErrUnknownCompression = errors.New("unknown codec compression")
)

// Format is the serialization used for frames
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Compression is applied to a serialized frame
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionS2   Compression = "s2"
)

// Codec marshals frames for the wire. A Codec is safe for concurrent use;
// Close releases the zstd coders.
type Codec struct {
	format      Format
	compression Compression

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// NewCodec creates a Codec for the given format and compression
func NewCodec(format Format, compression Compression) (*Codec, error) {
	switch format {
	case FormatJSON, FormatMsgpack:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	c := &Codec{format: format, compression: compression}
	switch compression {
	case CompressionNone, CompressionGzip, CompressionS2:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			enc.Close()
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		c.zenc, c.zdec = enc, dec
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
	return c, nil
}

// ParseCodec builds a Codec from a name such as "json", "msgpack" or
// "msgpack+zstd".
func ParseCodec(name string) (*Codec, error) {
	format, compression, _ := strings.Cut(strings.ToLower(strings.TrimSpace(name)), "+")
	if format == "" {
		format = string(FormatJSON)
	}
	return NewCodec(Format(format), Compression(compression))
}

// Name returns the codec name in ParseCodec form
func (c *Codec) Name() string {
	if c.compression == CompressionNone {
		return string(c.format)
	}
	return string(c.format) + "+" + string(c.compression)
}

// ContentType is the media type of the uncompressed payload
func (c *Codec) ContentType() string {
	if c.format == FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// ContentEncoding is the HTTP content coding, empty when uncompressed
func (c *Codec) ContentEncoding() string {
	return string(c.compression)
}

// Binary reports whether frames must travel as binary messages
func (c *Codec) Binary() bool {
	return c.format == FormatMsgpack || c.compression != CompressionNone
}

// Marshal serializes and compresses v
func (c *Codec) Marshal(v any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if c.format == FormatMsgpack {
		data, err = msgpack.Marshal(v)
	} else {
		data, err = sonic.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", c.format, err)
	}
	return c.compress(data)
}

// Unmarshal decompresses and deserializes data into v
func (c *Codec) Unmarshal(data []byte, v any) error {
	raw, err := c.decompress(data)
	if err != nil {
		return err
	}
	if c.format == FormatMsgpack {
		err = msgpack.Unmarshal(raw, v)
	} else {
		err = sonic.Unmarshal(raw, v)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s: %w", c.format, err)
	}
	return nil
}

// Close releases compression resources
func (c *Codec) Close() {
	if c.zenc != nil {
		c.zenc.Close()
	}
	if c.zdec != nil {
		c.zdec.Close()
	}
}

func (c *Codec) compress(data []byte) ([]byte, error) {
	switch c.compression {
	case CompressionZstd:
		return c.zenc.EncodeAll(data, nil), nil
	case CompressionS2:
		return s2.Encode(nil, data), nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return buf.Bytes(), nil
	}
	return data, nil
}

func (c *Codec) decompress(data []byte) ([]byte, error) {
	switch c.compression {
	case CompressionZstd:
		out, err := c.zdec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case CompressionS2:
		out, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("s2: %w", err)
		}
		return out, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return out, nil
	}
	return data, nil
}

// Codecs hands out one shared Codec per name
type Codecs struct {
	mu     sync.Mutex
	codecs map[string]*Codec
}

// NewCodecs creates an empty codec set
func NewCodecs() *Codecs {
	return &Codecs{codecs: map[string]*Codec{}}
}

// Get returns the codec for name, creating it on first use
func (s *Codecs) Get(name string) (*Codec, error) {
	probe, err := parseName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codecs[probe]; ok {
		return c, nil
	}
	c, err := ParseCodec(probe)
	if err != nil {
		return nil, err
	}
	s.codecs[probe] = c
	return c, nil
}

// Close releases every codec handed out
func (s *Codecs) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.codecs {
		c.Close()
		delete(s.codecs, name)
	}
}

// parseName normalises name and rejects unknown parts without building coders
func parseName(name string) (string, error) {
	format, compression, _ := strings.Cut(strings.ToLower(strings.TrimSpace(name)), "+")
	if format == "" {
		format = string(FormatJSON)
	}
	switch Format(format) {
	case FormatJSON, FormatMsgpack:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	switch Compression(compression) {
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionS2:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
	if compression == "" {
		return format, nil
	}
	return format + "+" + compression, nil
}
