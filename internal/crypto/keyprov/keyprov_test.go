package keyprov

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		nextGen   bool
		algorithm string
		want      Kind
	}{
		{nextGen: false, algorithm: "RSA", want: RSALegacy},
		{nextGen: true, algorithm: "RSA", want: RSANextGen},
		{nextGen: true, algorithm: "ECDSA", want: ECDSANextGen},
		{nextGen: true, algorithm: "ECDSA_P384", want: ECDSANextGen},
		{nextGen: false, algorithm: "ECDSA", want: Unsupported},
		{nextGen: true, algorithm: "DSA", want: Unsupported},
		{nextGen: false, algorithm: "", want: Unsupported},
	}
	for _, tt := range tests {
		if got := Classify(tt.nextGen, tt.algorithm); got != tt.want {
			t.Fatalf("Classify(%v,%q)=%v want %v", tt.nextGen, tt.algorithm, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	ok := Key{Kind: RSANextGen, ContainerID: "7a1b2c3d_9f3e"}
	assert.NoError(t, ok.Validate())

	err := Key{Kind: Unsupported, Algorithm: "DSA"}.Validate()
	assert.True(t, errors.Is(err, certerr.ErrUnsupportedKeyType))

	err = Key{Kind: RSALegacy}.Validate()
	assert.True(t, errors.Is(err, certerr.ErrUnsupportedKeyType))

	assert.Equal(t, "RSA-CSP", RSALegacy.String())
}
