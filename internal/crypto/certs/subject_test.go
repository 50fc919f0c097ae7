package certs

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"testing"
	"time"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

func TestDescribe(t *testing.T) {
	cert := &x509.Certificate{
		Subject: pkix.Name{
			CommonName: "web01.corp.example",
			Names: []pkix.AttributeTypeAndValue{
				{Type: oidCommonName, Value: "web01.corp.example"},
				{Type: oidOrganization, Value: "  Example   Corp "},
				{Type: oidOrganizationUnit, Value: "Ops"},
			},
		},
		Issuer:   pkix.Name{CommonName: "Example Issuing CA"},
		NotAfter: time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	info := Describe(cert)
	if info.CommonName != "web01.corp.example" {
		t.Fatalf("unexpected common name: %q", info.CommonName)
	}
	if info.Organization != "Example Corp" {
		t.Fatalf("unexpected organization: %q", info.Organization)
	}
	if info.Issuer != "Example Issuing CA" {
		t.Fatalf("unexpected issuer: %q", info.Issuer)
	}
	if info.ValidUntil != "2027-03-01" {
		t.Fatalf("unexpected expiry: %q", info.ValidUntil)
	}
	if info.SelfSigned {
		t.Fatal("expected issued certificate, got self-signed")
	}
}

func TestDisplayName(t *testing.T) {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: "svc-api"}}

	if got := DisplayName("  API  signing ", cert); got != "API signing" {
		t.Fatalf("expected friendly name, got %q", got)
	}
	if got := DisplayName("", cert); got != "svc-api" {
		t.Fatalf("expected common name, got %q", got)
	}
	if got := DisplayName("", &x509.Certificate{Subject: pkix.Name{Organization: []string{"Org"}}}); got != "O=Org" {
		t.Fatalf("expected subject, got %q", got)
	}
}

func TestParseThumbprint(t *testing.T) {
	want := "10DF834FC47DDFC4D069D2E4FE79E4BF1D6D4DAE"

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "lower", in: "10df834fc47ddfc4d069d2e4fe79e4bf1d6d4dae"},
		{name: "spaced", in: "10 df 83 4f c4 7d df c4 d0 69 d2 e4 fe 79 e4 bf 1d 6d 4d ae"},
		{name: "colons", in: "10:DF:83:4F:C4:7D:DF:C4:D0:69:D2:E4:FE:79:E4:BF:1D:6D:4D:AE"},
		{name: "certmgr copy", in: "\u200e10df834fc47ddfc4d069d2e4fe79e4bf1d6d4dae"},
		{name: "short", in: "10df", wantErr: true},
		{name: "not hex", in: "ZZdf834fc47ddfc4d069d2e4fe79e4bf1d6d4dae", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseThumbprint(tt.in)
			if tt.wantErr {
				if !errors.Is(err, certerr.ErrInvalidArgument) {
					t.Fatalf("expected InvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseThumbprint failed: %v", err)
			}
			if got != want {
				t.Fatalf("got %q want %q", got, want)
			}
		})
	}
}

func TestThumbprintOf(t *testing.T) {
	// SHA-1 of the empty input.
	if got := ThumbprintOf(nil); got != "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709" {
		t.Fatalf("unexpected digest %q", got)
	}
	if !SameThumbprint("da39a3ee5e6b4b0d3255bfef95601890afd80709", "DA:39:A3:EE:5E:6B:4B:0D:32:55:BF:EF:95:60:18:90:AF:D8:07:09") {
		t.Fatal("expected thumbprints to match")
	}
}
