package limits

import (
	"errors"
	"strings"
	"testing"
)

func TestEffectiveMaxPayload(t *testing.T) {
	tests := []struct {
		name       string
		configured int
		want       int
	}{
		{name: "zero means default", configured: 0, want: DefaultMaxPayload},
		{name: "negative means default", configured: -5, want: DefaultMaxPayload},
		{name: "explicit value kept", configured: 4096, want: 4096},
		{name: "above default kept", configured: 8 * 1024 * 1024, want: 8 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveMaxPayload(tt.configured); got != tt.want {
				t.Errorf("EffectiveMaxPayload(%d) = %d, want %d", tt.configured, got, tt.want)
			}
		})
	}
}

func TestValidatePayloadSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int
		wantErr bool
	}{
		{name: "empty payload is valid", size: 0, max: 1024, wantErr: false},
		{name: "at limit", size: 1024, max: 1024, wantErr: false},
		{name: "over limit", size: 1025, max: 1024, wantErr: true},
		{name: "negative size", size: -1, max: 1024, wantErr: true},
		{name: "default ceiling applies when max is zero", size: DefaultMaxPayload + 1, max: 0, wantErr: true},
		{name: "under default ceiling when max is zero", size: DefaultMaxPayload, max: 0, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayloadSize(tt.size, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePayloadSize(%d, %d) error = %v, wantErr %v", tt.size, tt.max, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPayloadTooLarge) {
				t.Errorf("error %v should wrap ErrPayloadTooLarge", err)
			}
		})
	}
}

func TestValidateDeclaredLength(t *testing.T) {
	tests := []struct {
		name     string
		declared uint64
		max      int
		wantErr  bool
	}{
		{name: "zero length", declared: 0, max: 1024, wantErr: false},
		{name: "at limit", declared: 1024, max: 1024, wantErr: false},
		{name: "over limit", declared: 1025, max: 1024, wantErr: true},
		{name: "would overflow int", declared: 1 << 40, max: 1024, wantErr: true},
		{name: "max uint64", declared: ^uint64(0), max: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeclaredLength(tt.declared, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeclaredLength(%d, %d) error = %v, wantErr %v", tt.declared, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	if err := ValidateAddress("tcp://127.0.0.1:33445"); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}

	long := "tcp://" + strings.Repeat("a", MaxAddressLength) + ":1"
	err := ValidateAddress(long)
	if err == nil {
		t.Fatal("oversized address accepted")
	}
	if !errors.Is(err, ErrAddressTooLong) {
		t.Errorf("error %v should wrap ErrAddressTooLong", err)
	}
}
