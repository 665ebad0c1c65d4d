package auth

import "testing"

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1a")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "secret1a" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "secret1a"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password must not verify")
	}
	if err := VerifyPassword("", "secret1a"); err == nil {
		t.Fatal("empty hash must not verify")
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	cases := map[string]bool{
		"secret1a": true,
		"a1b2c3":   true,
		"short1":   true,
		"abc1":     false,
		"abcdef":   false,
		"123456":   false,
		"":         false,
	}
	for password, ok := range cases {
		err := CheckPasswordStrength(password)
		if ok && err != nil {
			t.Errorf("%q: unexpected error: %v", password, err)
		}
		if !ok && err == nil {
			t.Errorf("%q: expected rejection", password)
		}
	}
}
