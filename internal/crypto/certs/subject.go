package certs

import (
	"crypto/x509"
	"encoding/asn1"
	"strings"
)

var (
	oidCommonName       = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidOrganization     = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidEmailAddress     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

type Info struct {
	CommonName   string
	Organization string
	Unit         string
	Email        string
	Subject      string
	Issuer       string
	ValidUntil   string
	SelfSigned   bool
}

// Describe extracts the attributes shown next to a certificate in listings.
func Describe(cert *x509.Certificate) Info {
	if cert == nil {
		return Info{}
	}
	info := Info{
		Subject:    cert.Subject.String(),
		Issuer:     cert.Issuer.CommonName,
		ValidUntil: cert.NotAfter.Format("2006-01-02"),
		SelfSigned: cert.Subject.String() == cert.Issuer.String(),
	}

	for _, name := range cert.Subject.Names {
		val, ok := name.Value.(string)
		if !ok {
			continue
		}
		val = normalizeSpace(val)
		switch {
		case name.Type.Equal(oidCommonName):
			info.CommonName = val
		case name.Type.Equal(oidOrganization):
			info.Organization = val
		case name.Type.Equal(oidOrganizationUnit):
			info.Unit = val
		case name.Type.Equal(oidEmailAddress):
			info.Email = val
		}
	}

	// Fallbacks from the parsed fields.
	if info.CommonName == "" {
		info.CommonName = normalizeSpace(cert.Subject.CommonName)
	}
	if info.Email == "" && len(cert.EmailAddresses) > 0 {
		info.Email = cert.EmailAddresses[0]
	}
	if info.Issuer == "" {
		info.Issuer = cert.Issuer.String()
	}
	return info
}

// DisplayName is the friendly name when set, else the subject common name,
// else the whole subject.
func DisplayName(friendlyName string, cert *x509.Certificate) string {
	if n := normalizeSpace(friendlyName); n != "" {
		return n
	}
	info := Describe(cert)
	if info.CommonName != "" {
		return info.CommonName
	}
	return info.Subject
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
