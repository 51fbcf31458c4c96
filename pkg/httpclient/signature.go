package httpclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signedHeaders = "authorization;x-api-key;x-timestamp"

// signParams is everything that goes into X-Api-Signature.
type signParams struct {
	Method      string
	Path        string
	Query       string // already encoded, without '?'
	Body        []byte
	AppKey      string
	AppSecret   string
	AccessToken string
	Timestamp   string
}

// sign builds the X-Api-Signature header value.
func sign(p signParams) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(p.Method))
	b.WriteByte('|')
	b.WriteString(p.Path)
	b.WriteByte('|')
	b.WriteString(p.Query)
	b.WriteByte('|')
	b.WriteString("authorization:" + p.AccessToken + "\n")
	b.WriteString("x-api-key:" + p.AppKey + "\n")
	b.WriteString("x-timestamp:" + p.Timestamp + "\n")
	b.WriteByte('|')
	b.WriteString(signedHeaders)
	b.WriteByte('|')
	if len(p.Body) > 0 {
		b.WriteString(sha1Hex(p.Body))
	}

	toSign := "HMAC-SHA256|" + sha1Hex([]byte(b.String()))
	mac := hmac.New(sha256.New, []byte(p.AppSecret))
	mac.Write([]byte(toSign))
	return "HMAC-SHA256 SignedHeaders=" + signedHeaders + ", Signature=" + hex.EncodeToString(mac.Sum(nil))
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
