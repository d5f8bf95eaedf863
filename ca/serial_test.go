package ca

import (
	"testing"
)

func TestNewSerialNumber(t *testing.T) {
	const draws = 10000

	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		serial, err := newSerialNumber()
		if err != nil {
			t.Fatalf("drawing serial: %v", err)
		}
		if serial.Sign() < 0 {
			t.Fatalf("negative serial: %s", serial)
		}
		if serial.BitLen() > 128 {
			t.Fatalf("serial wider than 128 bits: %s", serial)
		}

		key := serial.Text(16)
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate serial after %d draws: %s", i, key)
		}
		seen[key] = struct{}{}
	}
}
