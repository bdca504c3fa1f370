package blobname

import (
	"bytes"
	"math"
	"sort"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	instants := []int64{
		math.MinInt64, -1_500_000_000, -1, 0, 1,
		1_550_000_000_000_000_000, math.MaxInt64,
	}
	for _, ts := range instants {
		name, err := Encode(ts, CurrentVersion, nil)
		if err != nil {
			t.Fatalf("encode %d: %v", ts, err)
		}
		if len(name) != NameLen {
			t.Fatalf("name %q has length %d, want %d", name, len(name), NameLen)
		}
		got, version, ok := Decode(name)
		if !ok {
			t.Fatalf("decode %q: not recognized", name)
		}
		if got != ts {
			t.Fatalf("decode %q = %d, want %d", name, got, ts)
		}
		if version != Version1 {
			t.Fatalf("decode %q version = %c, want %c", name, version, Version1)
		}
	}
}

func TestEncodeUniqueForSameInstant(t *testing.T) {
	const n = 1000
	const ts = int64(1_550_000_000_000_000_000)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		name, err := Encode(ts, CurrentVersion, nil)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate name %q after %d encodes", name, i)
		}
		seen[name] = struct{}{}
		got, _, ok := Decode(name)
		if !ok || got != ts {
			t.Fatalf("decode %q = (%d, %v), want (%d, true)", name, got, ok, ts)
		}
	}
}

func TestLexicographicOrderMatchesTimestampOrder(t *testing.T) {
	instants := []int64{math.MinInt64, -7, 0, 3, 42, 1_550_000_000_000_000_000, math.MaxInt64}
	names := make([]string, len(instants))
	for i, ts := range instants {
		name, err := Encode(ts, CurrentVersion, nil)
		if err != nil {
			t.Fatalf("encode %d: %v", ts, err)
		}
		names[i] = name
	}
	// Timestamp prefixes must sort the same way the instants do, regardless
	// of the random suffixes.
	if !sort.SliceIsSorted(names, func(i, j int) bool {
		return names[i][:1+timestampLen] < names[j][:1+timestampLen]
	}) {
		t.Fatalf("timestamp prefixes not in ascending order: %v", names)
	}
}

func TestDecodeRejectsForeignNames(t *testing.T) {
	valid, err := Encode(0, CurrentVersion, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rejects := []string{
		"",
		"README.md",
		".gitignore",
		valid[:NameLen-1],         // truncated
		valid + "0",               // too long
		"9" + valid[1:],           // unknown version tag
		"1" + "zz" + valid[3:],    // bad charset
		"1" + "AB" + valid[3:],    // uppercase hex is not produced
		string(make([]byte, NameLen)), // NUL bytes
	}
	for _, name := range rejects {
		if _, _, ok := Decode(name); ok {
			t.Fatalf("Decode(%q) recognized, want skip", name)
		}
	}
}

func TestEncodeDrawsFromInjectedSource(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xab}, randomBytes))
	name, err := Encode(5, CurrentVersion, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "abababababababababababab"
	if got := name[1+timestampLen:]; got != want {
		t.Fatalf("disambiguator = %q, want %q", got, want)
	}
}

func TestEncodeUnknownVersion(t *testing.T) {
	if _, err := Encode(0, Version('9'), nil); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestEncodeShortRandomSource(t *testing.T) {
	src := bytes.NewReader([]byte{0x01})
	if _, err := Encode(0, CurrentVersion, src); err == nil {
		t.Fatalf("expected error for exhausted random source")
	}
}
