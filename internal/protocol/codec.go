package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	cbor "github.com/fxamacker/cbor/v2"
)

// MaxFrameSize bounds a single encoded message.
const MaxFrameSize = 64 << 10

// Codec frames messages on a byte stream.
type Codec interface {
	Name() string
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r *bufio.Reader) Decoder
}

// Encoder writes one message per call. Not safe for concurrent use.
type Encoder interface {
	Encode(m *Message) error
}

// Decoder reads one message per call. Errors wrapping ErrMalformed leave the
// stream positioned at the next frame; any other error is terminal.
type Decoder interface {
	Decode() (*Message, error)
}

// ByName returns the codec registered under name. Empty selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	}
	return nil, fmt.Errorf("protocol: unknown codec %q", name)
}

// Detect peeks at the first byte of a stream and picks the codec the peer
// writes with. A length-prefixed frame always starts with 0x00 because
// MaxFrameSize fits in three bytes.
func Detect(r *bufio.Reader) (Codec, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == 0x00 {
		return CBOR()
	}
	return JSON(), nil
}

func finish(m *Message, err error) (*Message, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// JSON returns the newline-delimited JSON codec.
func JSON() Codec { return jsonCodec{} }

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) NewEncoder(w io.Writer) Encoder { return &jsonEncoder{w: w} }

func (jsonCodec) NewDecoder(r *bufio.Reader) Decoder { return &jsonDecoder{r: r} }

type jsonEncoder struct {
	w   io.Writer
	buf bytes.Buffer
}

func (e *jsonEncoder) Encode(m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if len(data) >= MaxFrameSize {
		return ErrFrameTooLarge
	}
	e.buf.Reset()
	e.buf.Write(data)
	e.buf.WriteByte('\n')
	_, err = e.w.Write(e.buf.Bytes())
	return err
}

type jsonDecoder struct {
	r    *bufio.Reader
	line []byte
}

func (d *jsonDecoder) Decode() (*Message, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var m Message
		return finish(&m, json.Unmarshal(line, &m))
	}
}

func (d *jsonDecoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		chunk, err := d.r.ReadSlice('\n')
		d.line = append(d.line, chunk...)
		if len(d.line) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		switch {
		case err == nil:
			return d.line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(d.line) > 0:
			// trailing message without newline
			return d.line, nil
		default:
			return nil, err
		}
	}
}

// CBOR returns the length-prefixed CBOR codec.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{MaxArrayElements: 16, MaxMapPairs: 32}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) NewEncoder(w io.Writer) Encoder { return &cborEncoder{w: w, enc: c.enc} }

func (c cborCodec) NewDecoder(r *bufio.Reader) Decoder { return &cborDecoder{r: r, dec: c.dec} }

type cborEncoder struct {
	w   io.Writer
	enc cbor.EncMode
	buf []byte
}

func (e *cborEncoder) Encode(m *Message) error {
	body, err := e.enc.Marshal(m)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf[:0], uint32(len(body)))
	e.buf = append(e.buf, body...)
	_, err = e.w.Write(e.buf)
	return err
}

type cborDecoder struct {
	r   *bufio.Reader
	dec cbor.DecMode
	hdr [4]byte
	buf []byte
}

func (d *cborDecoder) Decode() (*Message, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(d.hdr[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if cap(d.buf) < int(n) {
		d.buf = make([]byte, n)
	}
	d.buf = d.buf[:n]
	if _, err := io.ReadFull(d.r, d.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	var m Message
	return finish(&m, d.dec.Unmarshal(d.buf, &m))
}
