package keymaterial

import "testing"

func TestValidHexFormat(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"a":              false,
		"ab":             true,
		"ABCDEF12":       true,
		"not-hex!!":      false,
		"abc":            false,
		"00112233445566": true,
	}
	for in, want := range cases {
		if got := ValidHexFormat(in); got != want {
			t.Errorf("ValidHexFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseHexKeyRequiresExactLength(t *testing.T) {
	if _, err := ParseHexKey("aabb"); err == nil {
		t.Fatal("expected error for short key")
	}
	hex, err := GenerateHex(KeySize)
	if err != nil {
		t.Fatalf("GenerateHex: %v", err)
	}
	key, err := ParseHexKey(hex)
	if err != nil {
		t.Fatalf("ParseHexKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("len(key) = %d, want %d", len(key), KeySize)
	}
}

func TestGenerateHexRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateHex(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := GenerateHex(-1); err == nil {
		t.Fatal("expected error for negative length")
	}
}
