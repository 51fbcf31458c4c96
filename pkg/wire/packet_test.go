package wire

import (
	"bytes"
	"errors"
	"testing"

	"gotest.tools/assert"
)

func TestEncodeRequestLayout(t *testing.T) {
	data, err := NewRequest(6, 0x01020304, 10000, []byte{0xaa, 0xbb}).Encode()
	assert.NilError(t, err)

	want := []byte{
		0x01,                   // request, no flags
		0x06,                   // cmd
		0x01, 0x02, 0x03, 0x04, // request id
		0x27, 0x10, // timeout 10000ms
		0x00, 0x00, 0x02, // body len
		0xaa, 0xbb,
	}
	assert.DeepEqual(t, data, want)
}

func TestDecodeResponse(t *testing.T) {
	data := []byte{0x02, 0x0b, 0x00, 0x00, 0x00, 0x07, 0x03, 0x00, 0x00, 0x01, 0x42}
	p, err := Decode(data)
	assert.NilError(t, err)
	assert.Equal(t, p.Type, TypeResponse)
	assert.Equal(t, p.Cmd, uint8(11))
	assert.Equal(t, p.RequestID, uint32(7))
	assert.Equal(t, p.Status, uint8(3))
	assert.DeepEqual(t, p.Body, []byte{0x42})
	assert.Assert(t, p.Signature == nil)
}

func TestPushRoundTripWithGzipAndSignature(t *testing.T) {
	body := bytes.Repeat([]byte("700.HK"), 64)
	sig := &Signature{}
	copy(sig.Nonce[:], "12345678")
	copy(sig.Sig[:], "abcdefghijklmnop")

	in := NewPush(101, body)
	in.Gzip = true
	in.Signature = sig

	data, err := in.Encode()
	assert.NilError(t, err)
	assert.Equal(t, data[0], byte(0x03|flagVerify|flagGzip))

	out, err := Decode(data)
	assert.NilError(t, err)
	assert.Equal(t, out.Type, TypePush)
	assert.Equal(t, out.Cmd, uint8(101))
	assert.Assert(t, out.Gzip)
	assert.DeepEqual(t, out.Body, body)
	assert.DeepEqual(t, out.Signature.Nonce, sig.Nonce)
	assert.DeepEqual(t, out.Signature.Sig, sig.Sig)
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":          {},
		"header only":    {0x02},
		"unknown type":   {0x09, 0x01, 0x00, 0x00, 0x00},
		"short response": {0x02, 0x01, 0x00, 0x00},
		"short body":     {0x03, 0x65, 0x00, 0x00, 0x05, 0x01},
		"short sig":      {0x13, 0x65, 0x00, 0x00, 0x00, 0x01, 0x02},
		"bad gzip":       {0x23, 0x65, 0x00, 0x00, 0x02, 0x01, 0x02},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.Assert(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestEncodeBodyTooLong(t *testing.T) {
	_, err := NewPush(1, make([]byte, MaxBodyLen+1)).Encode()
	assert.Assert(t, errors.Is(err, ErrBodyTooLong))
}
