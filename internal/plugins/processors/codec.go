package processors

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
)

// CodecConfig configures compress/decompress: the algorithm is one of
// "gzip", "zlib" or "deflate", matching the FiddlerScript built-ins of
// the same family.
type CodecConfig struct {
	Algorithm string `yaml:"algorithm"`
}

type writerFactory func(io.Writer) (io.WriteCloser, error)
type readerFactory func(io.Reader) (io.ReadCloser, error)

func codecFactories(algorithm string) (writerFactory, readerFactory, error) {
	switch algorithm {
	case "gzip":
		return func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
			func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
			nil
	case "zlib":
		return func(w io.Writer) (io.WriteCloser, error) { return zlib.NewWriter(w), nil },
			func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) },
			nil
	case "deflate":
		return func(w io.Writer) (io.WriteCloser, error) { return flate.NewWriter(w, flate.DefaultCompression) },
			func(r io.Reader) (io.ReadCloser, error) { return flate.NewReader(r), nil },
			nil
	default:
		return nil, nil, fmt.Errorf("unsupported codec algorithm %q", algorithm)
	}
}

// Compress replaces a message's payload with its compressed form.
type Compress struct {
	newWriter writerFactory
}

// NewCompress is a component.Constructor for the "compress" tag.
func NewCompress(cfg any, _ component.Dependencies) (any, error) {
	var cc CodecConfig
	if err := config.DecodeInto(cfg, &cc); err != nil {
		return nil, &component.ConfigError{Component: "compress", Cause: err}
	}
	w, _, err := codecFactories(cc.Algorithm)
	if err != nil {
		return nil, &component.ConfigError{Component: "compress", Cause: err}
	}
	return &Compress{newWriter: w}, nil
}

func (c *Compress) Process(msg *message.Message) ([]*message.Message, error) {
	var buf bytes.Buffer
	w, err := c.newWriter(&buf)
	if err != nil {
		return nil, component.NewProcessingError("compress", err)
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return nil, component.NewProcessingError("compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, component.NewProcessingError("compress", err)
	}
	msg.SetBytes(buf.Bytes())
	return []*message.Message{msg}, nil
}

func (c *Compress) Close() error { return nil }

// Decompress replaces a message's payload with its decompressed form.
type Decompress struct {
	newReader readerFactory
}

// NewDecompress is a component.Constructor for the "decompress" tag.
func NewDecompress(cfg any, _ component.Dependencies) (any, error) {
	var cc CodecConfig
	if err := config.DecodeInto(cfg, &cc); err != nil {
		return nil, &component.ConfigError{Component: "decompress", Cause: err}
	}
	_, r, err := codecFactories(cc.Algorithm)
	if err != nil {
		return nil, &component.ConfigError{Component: "decompress", Cause: err}
	}
	return &Decompress{newReader: r}, nil
}

func (d *Decompress) Process(msg *message.Message) ([]*message.Message, error) {
	r, err := d.newReader(bytes.NewReader(msg.Bytes()))
	if err != nil {
		return nil, component.NewProcessingError("decompress", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, component.NewProcessingError("decompress", err)
	}
	msg.SetBytes(out)
	return []*message.Message{msg}, nil
}

func (d *Decompress) Close() error { return nil }

// DecodeConfig configures the "decode" processor: base64 in either
// direction, using stdlib encoding/base64 (see DESIGN.md).
type DecodeConfig struct {
	Action string `yaml:"action"` // "encode" or "decode"
}

// Decode base64-encodes or decodes a message payload.
type Decode struct {
	encode bool
}

// NewDecode is a component.Constructor for the "decode" tag.
func NewDecode(cfg any, _ component.Dependencies) (any, error) {
	var dc DecodeConfig
	if err := config.DecodeInto(cfg, &dc); err != nil {
		return nil, &component.ConfigError{Component: "decode", Cause: err}
	}
	switch dc.Action {
	case "encode":
		return &Decode{encode: true}, nil
	case "decode":
		return &Decode{encode: false}, nil
	default:
		return nil, &component.ConfigError{Component: "decode", Cause: fmt.Errorf("action must be \"encode\" or \"decode\", got %q", dc.Action)}
	}
}

func (d *Decode) Process(msg *message.Message) ([]*message.Message, error) {
	if d.encode {
		encoded := base64.StdEncoding.EncodeToString(msg.Bytes())
		msg.SetBytes([]byte(encoded))
		return []*message.Message{msg}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(msg.Bytes()))
	if err != nil {
		return nil, component.NewProcessingError("decode", err)
	}
	msg.SetBytes(decoded)
	return []*message.Message{msg}, nil
}

func (d *Decode) Close() error { return nil }
