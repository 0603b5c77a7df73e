package encryptedchat

import "testing"

func TestDeriveKeyIDOrderIndependent(t *testing.T) {
	a := deriveKeyID([]string{"alice", "bob", "carol"})
	b := deriveKeyID([]string{"carol", "alice", "bob"})
	if a != b {
		t.Fatalf("deriveKeyID order-dependent: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("deriveKeyID length = %d, want 16", len(a))
	}
}

func TestDeriveKeyIDDistinguishesMembership(t *testing.T) {
	a := deriveKeyID([]string{"alice", "bob"})
	b := deriveKeyID([]string{"alice", "bob", "carol"})
	if a == b {
		t.Fatalf("deriveKeyID collided across different membership sets")
	}
}

func TestDeriveKeyIDNoConcatenationAmbiguity(t *testing.T) {
	// "ab","c" and "a","bc" must not hash the same; the length prefix in
	// deriveKeyID is what prevents that.
	a := deriveKeyID([]string{"ab", "c"})
	b := deriveKeyID([]string{"a", "bc"})
	if a == b {
		t.Fatalf("deriveKeyID collided on a concatenation boundary")
	}
}
