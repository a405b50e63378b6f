package validation

import "testing"

func TestIsValidAddress(t *testing.T) {
	valid := []string{
		"0x1234567890abcdef1234567890abcdef12345678",
		"0xABCDEF1234567890abcdef1234567890ABCDEF12",
	}
	for _, addr := range valid {
		if !IsValidAddress(addr) {
			t.Errorf("expected %s to be valid", addr)
		}
	}

	invalid := []string{
		"",
		"0x123",
		"1234567890abcdef1234567890abcdef12345678",
		"0x1234567890abcdef1234567890abcdef1234567g",
		"0x1234567890abcdef1234567890abcdef123456789",
	}
	for _, addr := range invalid {
		if IsValidAddress(addr) {
			t.Errorf("expected %s to be invalid", addr)
		}
	}
}

func TestSanitizeAddress(t *testing.T) {
	got := SanitizeAddress("  0xABCDEF1234567890abcdef1234567890ABCDEF12  ")
	want := "0xabcdef1234567890abcdef1234567890abcdef12"
	if got != want {
		t.Errorf("SanitizeAddress = %q, want %q", got, want)
	}

	// Missing 0x prefix gets added for 40-char hex.
	got = SanitizeAddress("abcdef1234567890abcdef1234567890abcdef12")
	if got != want {
		t.Errorf("SanitizeAddress without prefix = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("payment_id", ""),
		ValidAddress("buyer", "nonsense"),
		PositiveAmount("unit_price", 0),
		PositiveQuantity("quantity", 0),
	)
	if len(errs) != 4 {
		t.Fatalf("expected 4 validation errors, got %d: %v", len(errs), errs)
	}

	errs = Validate(
		Required("payment_id", "pay_1"),
		ValidAddress("buyer", "0x1234567890abcdef1234567890abcdef12345678"),
		PositiveAmount("unit_price", 100),
		PositiveQuantity("quantity", 2),
	)
	if len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("  hello\x00world  ", 5)
	if got != "hello" {
		t.Errorf("SanitizeString = %q, want %q", got, "hello")
	}
}
