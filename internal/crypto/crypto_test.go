package crypto

import (
	"bytes"
	"testing"
)

func TestKDFDeterminismAndContext(t *testing.T) {
	ikm := []byte("ikm")

	key1 := KDF("n1sec:v0:send", ikm)
	key2 := KDF("n1sec:v0:send", ikm)
	if !bytes.Equal(key1, key2) {
		t.Fatalf("KDF not deterministic")
	}

	key3 := KDF("n1sec:v0:recv", ikm)
	if bytes.Equal(key1, key3) {
		t.Fatalf("expected different keys for different labels")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenKeypair()
	if err != nil {
		t.Fatalf("GenKeypair failed: %v", err)
	}
	digest := SHA3_256([]byte("authorize me"))
	sig := Sign(priv, digest)
	if sig == nil {
		t.Fatalf("Sign returned nil")
	}
	if !Verify(pub, digest, sig) {
		t.Fatalf("Verify rejected a valid signature")
	}
	if Verify(pub, SHA3_256([]byte("authorize someone else")), sig) {
		t.Fatalf("Verify accepted a signature over the wrong digest")
	}
}

func TestTripleDHSymmetric(t *testing.T) {
	aLTPub, aLTPriv, err := GenerateLongTermDH()
	if err != nil {
		t.Fatalf("GenerateLongTermDH: %v", err)
	}
	bLTPub, bLTPriv, err := GenerateLongTermDH()
	if err != nil {
		t.Fatalf("GenerateLongTermDH: %v", err)
	}
	aEph, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	bEph, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral: %v", err)
	}
	aEphPub, _ := aEph.Public()
	bEphPub, _ := bEph.Public()

	tokenA, err := TripleDH(aLTPriv, aEph.privBytes, bLTPub, bEphPub)
	if err != nil {
		t.Fatalf("TripleDH (A side): %v", err)
	}
	tokenB, err := TripleDH(bLTPriv, bEph.privBytes, aLTPub, aEphPub)
	if err != nil {
		t.Fatalf("TripleDH (B side): %v", err)
	}
	if !bytes.Equal(tokenA, tokenB) {
		t.Fatalf("TripleDH not symmetric between endpoints")
	}

	cLTPub, _, err := GenerateLongTermDH()
	if err != nil {
		t.Fatalf("GenerateLongTermDH: %v", err)
	}
	tokenC, err := TripleDH(bLTPriv, bEph.privBytes, cLTPub, aEphPub)
	if err != nil {
		t.Fatalf("TripleDH (wrong peer): %v", err)
	}
	if bytes.Equal(tokenA, tokenC) {
		t.Fatalf("TripleDH should differ against a different peer")
	}
}
