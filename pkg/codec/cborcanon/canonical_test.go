package cborcanon

import (
	"bytes"
	"encoding/hex"
	"testing"
)

type record struct {
	Type     uint8  `cbor:"type"`
	Data     []byte `cbor:"data"`
	StoredAt int64  `cbor:"stored_at"`
}

func TestCanonicalEncoding(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected string // hex-encoded canonical CBOR, empty when only determinism is checked
	}{
		{
			name:     "sorted_map",
			input:    map[string]any{"b": 2, "a": 1},
			expected: "a2616101616202",
		},
		{
			name:     "array",
			input:    []any{3, 1, 2},
			expected: "83030102", // arrays preserve order
		},
		{
			name:     "empty_map",
			input:    map[string]any{},
			expected: "a0",
		},
		{
			name:  "record",
			input: record{Type: 1, Data: []byte{0xca, 0xfe}, StoredAt: 1700000000},
		},
		{
			name:  "counters",
			input: []uint32{0, 1, 65535, 70000},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Marshal(tc.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			if tc.expected != "" && hex.EncodeToString(encoded) != tc.expected {
				t.Errorf("Expected %s, got %x", tc.expected, encoded)
			}

			if !IsCanonical(encoded) {
				t.Errorf("Marshal output is not canonical: %x", encoded)
			}

			reencoded, err := CanonicalBytes(encoded)
			if err != nil {
				t.Fatalf("CanonicalBytes failed: %v", err)
			}
			if !bytes.Equal(encoded, reencoded) {
				t.Errorf("Encoding not deterministic: %x != %x", encoded, reencoded)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	in := record{Type: 2, Data: []byte("chunk bytes"), StoredAt: 42}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out record
	if err := UnmarshalCanonical(encoded, &out); err != nil {
		t.Fatalf("UnmarshalCanonical failed: %v", err)
	}
	if out.Type != in.Type || !bytes.Equal(out.Data, in.Data) || out.StoredAt != in.StoredAt {
		t.Errorf("Round trip mismatch: %+v != %+v", out, in)
	}
}

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		name      string
		data      string // hex-encoded CBOR
		canonical bool
	}{
		{"canonical_map", "a2616101616202", true},    // {"a": 1, "b": 2}
		{"non_canonical_map", "a2616202616101", false}, // {"b": 2, "a": 1}
		{"canonical_array", "83010203", true},
		{"non_minimal_integer", "1801", false}, // 1 encoded in two bytes
		{"duplicate_keys", "a2616101616102", false},
		{"indefinite_array", "9f0102ff", false},
		{"truncated", "a261", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			if err != nil {
				t.Fatalf("Invalid hex: %v", err)
			}

			if IsCanonical(data) != tt.canonical {
				t.Errorf("IsCanonical() = %v, want %v", IsCanonical(data), tt.canonical)
			}
		})
	}
}

func TestStrictDecoding(t *testing.T) {
	duplicate, _ := hex.DecodeString("a2616101616102")

	var m map[string]int
	if err := Unmarshal(duplicate, &m); err == nil {
		t.Error("Duplicate map keys were accepted")
	}

	nonCanonical, _ := hex.DecodeString("a2616202616101")
	if err := UnmarshalCanonical(nonCanonical, &m); err == nil {
		t.Error("Non-canonical input accepted by UnmarshalCanonical")
	}
	if err := Unmarshal(nonCanonical, &m); err != nil {
		t.Errorf("Unmarshal should accept non-canonical order: %v", err)
	}
}

func BenchmarkCanonicalMarshal(b *testing.B) {
	counters := make([]uint32, 1<<16)
	for i := range counters {
		counters[i] = uint32(i % 7)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Marshal(counters); err != nil {
			b.Fatal(err)
		}
	}
}
