package importspec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"unicode/utf16"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// go-pkcs12 only reads DER. Older exporters write BER with indefinite
// lengths and chunked OCTET STRINGs, so those files are re-encoded as DER
// before decoding. Re-encoding can change the bytes the MAC covers, in
// which case the MAC is recomputed with the candidate password.

const (
	tagConstructed  = 0x20
	tagOctetString  = 0x04
	tagContext0     = 0x80
	tagHighNumber   = 0x1f
	endOfContents   = 0x00
	maxBERNesting   = 64
	pkcs12MACKeyID  = 3
	sha1BlockLength = 64
)

type pkcs12Attempt struct {
	data     []byte
	password string
}

// pkcs12Attempts lists the inputs to try, most likely first: the file as
// read, then its DER form, then the DER form with a recomputed MAC.
func pkcs12Attempts(data []byte, password string) []pkcs12Attempt {
	passwords := alternatePasswords(password)
	var out []pkcs12Attempt
	seen := make(map[[sha256.Size]byte]map[string]bool)
	add := func(d []byte, pw string) {
		sum := sha256.Sum256(d)
		if seen[sum] == nil {
			seen[sum] = make(map[string]bool)
		}
		if seen[sum][pw] {
			return
		}
		seen[sum][pw] = true
		out = append(out, pkcs12Attempt{data: d, password: pw})
	}

	for _, pw := range passwords {
		add(data, pw)
	}
	der, err := derFromBER(data)
	if err != nil || bytes.Equal(der, data) {
		return out
	}
	for _, pw := range passwords {
		add(der, pw)
	}
	for _, pw := range passwords {
		if fixed, err := resignPFX(der, pw); err == nil {
			add(fixed, pw)
		}
	}
	return out
}

type berElement struct {
	tag      byte
	value    []byte
	children []*berElement
}

func (e *berElement) constructed() bool {
	return e.tag&tagConstructed != 0
}

// derFromBER re-encodes a single BER element as DER.
func derFromBER(in []byte) ([]byte, error) {
	r := berReader{buf: in}
	el, err := r.element(0)
	if err != nil {
		return nil, err
	}
	if len(r.buf) != 0 {
		return nil, errors.New("ber: trailing data")
	}
	var b cryptobyte.Builder
	el.encode(&b)
	return b.Bytes()
}

func (e *berElement) encode(b *cryptobyte.Builder) {
	b.AddASN1(cbasn1.Tag(e.tag), func(c *cryptobyte.Builder) {
		if !e.constructed() {
			c.AddBytes(e.value)
			return
		}
		for _, child := range e.children {
			child.encode(c)
		}
	})
}

type berReader struct {
	buf []byte
}

func (r *berReader) byte() (byte, error) {
	if len(r.buf) == 0 {
		return 0, errors.New("ber: truncated element")
	}
	c := r.buf[0]
	r.buf = r.buf[1:]
	return c, nil
}

func (r *berReader) atEndOfContents() bool {
	return len(r.buf) >= 2 && r.buf[0] == endOfContents && r.buf[1] == endOfContents
}

func (r *berReader) element(depth int) (*berElement, error) {
	if depth > maxBERNesting {
		return nil, errors.New("ber: nesting too deep")
	}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag&tagHighNumber == tagHighNumber {
		return nil, fmt.Errorf("ber: high tag number form 0x%02x not supported", tag)
	}
	length, indefinite, err := r.length()
	if err != nil {
		return nil, err
	}
	el := &berElement{tag: tag}

	if indefinite {
		if !el.constructed() {
			return nil, errors.New("ber: indefinite length on a primitive element")
		}
		for !r.atEndOfContents() {
			child, err := r.element(depth + 1)
			if err != nil {
				return nil, err
			}
			el.children = append(el.children, child)
		}
		r.buf = r.buf[2:]
		return el.normalize(), nil
	}

	if len(r.buf) < length {
		return nil, errors.New("ber: content truncated")
	}
	content := r.buf[:length]
	r.buf = r.buf[length:]
	if !el.constructed() {
		el.value = content
		return el, nil
	}
	sub := berReader{buf: content}
	for len(sub.buf) > 0 {
		child, err := sub.element(depth + 1)
		if err != nil {
			return nil, err
		}
		el.children = append(el.children, child)
	}
	return el.normalize(), nil
}

func (r *berReader) length() (n int, indefinite bool, err error) {
	first, err := r.byte()
	if err != nil {
		return 0, false, err
	}
	switch {
	case first == 0x80:
		return 0, true, nil
	case first < 0x80:
		return int(first), false, nil
	}
	size := int(first &^ 0x80)
	if size > 4 {
		return 0, false, fmt.Errorf("ber: %d byte length not supported", size)
	}
	for i := 0; i < size; i++ {
		c, err := r.byte()
		if err != nil {
			return 0, false, err
		}
		n = n<<8 | int(c)
	}
	return n, false, nil
}

// normalize applies the DER rules BER relaxes: OCTET STRINGs are primitive,
// and the chunked [0] IMPLICIT OCTET STRING of encrypted content is joined.
func (e *berElement) normalize() *berElement {
	switch {
	case e.tag == tagOctetString|tagConstructed:
		joined, ok := joinOctets(e.children)
		if !ok {
			return e
		}
		// PKCS#12 nests whole structures in OCTET STRINGs; fix those too.
		if len(joined) > 0 && joined[0] == 0x30 {
			if der, err := derFromBER(joined); err == nil {
				joined = der
			}
		}
		return &berElement{tag: tagOctetString, value: joined}
	case e.tag == tagContext0|tagConstructed && len(e.children) > 1:
		if joined, ok := joinOctets(e.children); ok {
			return &berElement{tag: tagContext0, value: joined}
		}
	}
	return e
}

func joinOctets(parts []*berElement) ([]byte, bool) {
	var out []byte
	for _, p := range parts {
		if p.tag != tagOctetString {
			return nil, false
		}
		out = append(out, p.value...)
	}
	return out, true
}

var oidSHA1 = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}

type pfxEnvelope struct {
	Version  int
	AuthSafe struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
	}
	MacData struct {
		Mac struct {
			Algorithm pkix.AlgorithmIdentifier
			Digest    []byte
		}
		MacSalt    []byte
		Iterations int `asn1:"optional,default:1"`
	} `asn1:"optional"`
}

// resignPFX recomputes the SHA-1 MAC of a DER PFX for password.
func resignPFX(der []byte, password string) ([]byte, error) {
	var pfx pfxEnvelope
	if _, err := asn1.Unmarshal(der, &pfx); err != nil {
		return nil, err
	}
	if !pfx.MacData.Mac.Algorithm.Algorithm.Equal(oidSHA1) {
		return nil, errors.New("pfx: only SHA-1 MACs can be recomputed")
	}
	var authSafe []byte
	if _, err := asn1.Unmarshal(pfx.AuthSafe.Content.Bytes, &authSafe); err != nil {
		return nil, err
	}
	pw, err := bmpPassword(password)
	if err != nil {
		return nil, err
	}
	iterations := pfx.MacData.Iterations
	if iterations < 1 {
		iterations = 1
	}
	mac := hmac.New(sha1.New, macKey(pfx.MacData.MacSalt, pw, iterations))
	mac.Write(authSafe)
	pfx.MacData.Mac.Digest = mac.Sum(nil)
	return asn1.Marshal(pfx)
}

// macKey derives the 20 byte MAC key of RFC 7292 appendix B. One SHA-1
// block covers the whole key, so no carry over I is needed.
func macKey(salt, password []byte, iterations int) []byte {
	d := bytes.Repeat([]byte{pkcs12MACKeyID}, sha1BlockLength)
	h := sha1.New()
	h.Write(d)
	h.Write(repeatToBlock(salt))
	h.Write(repeatToBlock(password))
	a := h.Sum(nil)
	for i := 1; i < iterations; i++ {
		sum := sha1.Sum(a)
		a = sum[:]
	}
	return a
}

func repeatToBlock(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, sha1BlockLength*((len(b)+sha1BlockLength-1)/sha1BlockLength))
	for i := range out {
		out[i] = b[i%len(b)]
	}
	return out
}

// bmpPassword encodes a password as a NUL terminated big-endian BMPString.
func bmpPassword(s string) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units)+2)
	for _, r := range s {
		if r > 0xFFFF {
			return nil, errors.New("pfx: password has characters outside the BMP")
		}
	}
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return append(out, 0, 0), nil
}
