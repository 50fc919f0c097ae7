package version

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "v1.2.3", want: "v1.2.3", ok: true},
		{in: "1.2", want: "v1.2.0", ok: true},
		{in: " V2 ", want: "v2.0.0", ok: true},
		{in: "v1.2.3-rc1", want: "v1.2.3-rc1", ok: true},
		{in: "v0.4.1+dirty", want: "v0.4.1+dirty", ok: true},
		{in: "(devel)", ok: false},
		{in: "1.2.3.4", ok: false},
		{in: "", ok: false},
	}

	for _, tt := range tests {
		got, ok := Canonical(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("Canonical(%q)=%q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		linked string
		module string
		want   string
	}{
		{linked: "v1.4.0", module: "v1.3.0", want: "v1.4.0"},
		{linked: "", module: "v1.3.0", want: "v1.3.0"},
		{linked: "", module: "(devel)", want: "dev"},
		{linked: "nightly", module: "", want: "dev"},
	}

	for _, tt := range tests {
		if got := resolve(tt.linked, tt.module); got != tt.want {
			t.Fatalf("resolve(%q,%q)=%q want %q", tt.linked, tt.module, got, tt.want)
		}
	}
}
