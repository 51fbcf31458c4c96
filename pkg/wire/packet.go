// Package wire implements the binary framing used on the quote and trade
// gateway websockets.
//
// Every frame starts with a header byte (low nibble: packet type, 0x10:
// signed, 0x20: gzip body) followed by a command code. Multi-byte integers
// are big-endian; body lengths are 24 bits.
//
//	request:  hdr cmd id:u32 timeout_ms:u16 len:u24 body [nonce:8 sig:16]
//	response: hdr cmd id:u32 status:u8      len:u24 body [nonce:8 sig:16]
//	push:     hdr cmd                       len:u24 body [nonce:8 sig:16]
package wire

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type PacketType uint8

const (
	TypeRequest  PacketType = 1
	TypeResponse PacketType = 2
	TypePush     PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypePush:
		return "push"
	default:
		return "unknown"
	}
}

const (
	typeMask   = 0x0f
	flagVerify = 0x10
	flagGzip   = 0x20

	// MaxBodyLen is the largest body a 24-bit length prefix can describe.
	MaxBodyLen = 1<<24 - 1

	nonceLen     = 8
	signatureLen = 16
)

var (
	ErrMalformed   = errors.New("wire: malformed packet")
	ErrBodyTooLong = errors.New("wire: body exceeds 24-bit length")
)

// Signature is the optional trailer of a signed frame.
type Signature struct {
	Nonce [nonceLen]byte
	Sig   [signatureLen]byte
}

// Packet is a decoded frame. Fields that do not apply to Type are zero.
type Packet struct {
	Type          PacketType
	Cmd           uint8
	RequestID     uint32
	TimeoutMillis uint16
	Status        uint8
	Body          []byte
	Gzip          bool
	Signature     *Signature
}

// NewRequest builds a request frame.
func NewRequest(cmd uint8, requestID uint32, timeoutMillis uint16, body []byte) *Packet {
	return &Packet{Type: TypeRequest, Cmd: cmd, RequestID: requestID, TimeoutMillis: timeoutMillis, Body: body}
}

// NewResponse builds a response frame.
func NewResponse(cmd uint8, requestID uint32, status uint8, body []byte) *Packet {
	return &Packet{Type: TypeResponse, Cmd: cmd, RequestID: requestID, Status: status, Body: body}
}

// NewPush builds a push frame.
func NewPush(cmd uint8, body []byte) *Packet {
	return &Packet{Type: TypePush, Cmd: cmd, Body: body}
}

// Encode serializes p. When p.Gzip is set the body is compressed first.
func (p *Packet) Encode() ([]byte, error) {
	body := p.Body
	if p.Gzip {
		var err error
		if body, err = gzipBody(body); err != nil {
			return nil, errors.Wrap(err, "wire: gzip body")
		}
	}
	if len(body) > MaxBodyLen {
		return nil, ErrBodyTooLong
	}

	header := uint8(p.Type) & typeMask
	if p.Signature != nil {
		header |= flagVerify
	}
	if p.Gzip {
		header |= flagGzip
	}

	buf := make([]byte, 0, 12+len(body)+nonceLen+signatureLen)
	buf = append(buf, header, p.Cmd)
	switch p.Type {
	case TypeRequest:
		buf = binary.BigEndian.AppendUint32(buf, p.RequestID)
		buf = binary.BigEndian.AppendUint16(buf, p.TimeoutMillis)
	case TypeResponse:
		buf = binary.BigEndian.AppendUint32(buf, p.RequestID)
		buf = append(buf, p.Status)
	case TypePush:
	default:
		return nil, errors.Errorf("wire: unknown packet type %d", p.Type)
	}
	buf = appendUint24(buf, uint32(len(body)))
	buf = append(buf, body...)
	if p.Signature != nil {
		buf = append(buf, p.Signature.Nonce[:]...)
		buf = append(buf, p.Signature.Sig[:]...)
	}
	return buf, nil
}

// Decode parses one frame. Gzip bodies are inflated, so the returned Body is
// always plain.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, ErrMalformed
	}
	header := data[0]
	p := &Packet{
		Type: PacketType(header & typeMask),
		Cmd:  data[1],
		Gzip: header&flagGzip != 0,
	}
	rest := data[2:]

	switch p.Type {
	case TypeRequest:
		if len(rest) < 6 {
			return nil, ErrMalformed
		}
		p.RequestID = binary.BigEndian.Uint32(rest)
		p.TimeoutMillis = binary.BigEndian.Uint16(rest[4:])
		rest = rest[6:]
	case TypeResponse:
		if len(rest) < 5 {
			return nil, ErrMalformed
		}
		p.RequestID = binary.BigEndian.Uint32(rest)
		p.Status = rest[4]
		rest = rest[5:]
	case TypePush:
	default:
		return nil, errors.Wrapf(ErrMalformed, "packet type %d", p.Type)
	}

	if len(rest) < 3 {
		return nil, ErrMalformed
	}
	n := int(readUint24(rest))
	rest = rest[3:]
	if len(rest) < n {
		return nil, errors.Wrapf(ErrMalformed, "body length %d, have %d", n, len(rest))
	}
	body := rest[:n]
	rest = rest[n:]

	if header&flagVerify != 0 {
		if len(rest) < nonceLen+signatureLen {
			return nil, errors.Wrap(ErrMalformed, "short signature")
		}
		sig := &Signature{}
		copy(sig.Nonce[:], rest[:nonceLen])
		copy(sig.Sig[:], rest[nonceLen:nonceLen+signatureLen])
		p.Signature = sig
	}

	if p.Gzip {
		plain, err := gunzipBody(body)
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		p.Body = plain
	} else {
		p.Body = append([]byte(nil), body...)
	}
	return p, nil
}

func appendUint24(b []byte, v uint32) []byte {
	return append(b, byte(v>>16), byte(v>>8), byte(v))
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBody(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
