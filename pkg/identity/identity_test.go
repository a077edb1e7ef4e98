package identity

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

func TestGenerateIdentity(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate identity: %v", err)
	}

	if id.Address() == (common.Address{}) {
		t.Error("Generated identity has zero address")
	}

	other, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate second identity: %v", err)
	}
	if id.Address() == other.Address() {
		t.Error("Two generated identities share an address")
	}
}

// The dispersed replica key 0x01 followed by 31 zero bytes has a well-known address
func TestKnownAddress(t *testing.T) {
	key := append([]byte{1}, make([]byte, 31)...)
	id, err := FromBytes(key)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	want := "dc5b20847f43d67928f49cd4f85d696b5a7617b5"
	got := hex.EncodeToString(id.Address().Bytes())
	if got != want {
		t.Errorf("Address mismatch: got %s, want %s", got, want)
	}

	fromHex, err := FromHex("0x" + hex.EncodeToString(key))
	if err != nil {
		t.Fatalf("FromHex failed: %v", err)
	}
	if fromHex.Address() != id.Address() {
		t.Error("FromHex and FromBytes disagree")
	}
}

func TestSignAndRecover(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate identity: %v", err)
	}

	data := []byte("swarm single owner chunk digest")
	sig, err := id.Sign(data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if len(sig) != 65 {
		t.Fatalf("Signature length: got %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Errorf("Recovery byte should be 27 or 28, got %d", v)
	}

	recovered, err := RecoverAddress(sig, data)
	if err != nil {
		t.Fatalf("RecoverAddress failed: %v", err)
	}
	if recovered != id.Address() {
		t.Errorf("Recovered %s, want %s", recovered.Hex(), id.Address().Hex())
	}

	// A different message recovers a different signer
	other, err := RecoverAddress(sig, []byte("another message"))
	if err == nil && other == id.Address() {
		t.Error("Signature verified over the wrong data")
	}
}

func TestRecoverAddressInvalid(t *testing.T) {
	if _, err := RecoverAddress(make([]byte, 64), []byte("x")); !swarm.IsValidationError(err) {
		t.Errorf("Expected validation error for short signature, got %v", err)
	}

	bad := bytes.Repeat([]byte{0xff}, 65)
	if _, err := RecoverAddress(bad, []byte("x")); err == nil {
		t.Error("Expected error for garbage signature")
	}
}

func TestKeccak256(t *testing.T) {
	// Keccak-256 of the empty string
	want := "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := Keccak256().String(); got != want {
		t.Errorf("Empty Keccak mismatch: got %s, want %s", got, want)
	}

	joined := Keccak256([]byte("ab"), []byte("cd"))
	whole := Keccak256([]byte("abcd"))
	if joined != whole {
		t.Error("Keccak256 must hash the concatenation of its inputs")
	}
}

func TestSaveAndLoad(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate identity: %v", err)
	}

	path := filepath.Join(t.TempDir(), "keys", "owner.json")
	if err := id.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Key file permissions: got %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Address() != id.Address() {
		t.Error("Loaded identity has a different address")
	}
}

func TestLoadRejectsMismatchedAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tampered.json")
	content := `{"private_key":"` + strings.Repeat("01", 32) + `","address":"0x0000000000000000000000000000000000000001"}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadFromFile(path); !swarm.IsIntegrityError(err) {
		t.Errorf("Expected integrity error, got %v", err)
	}
}

func TestLoadOrGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owner.json")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate (create) failed: %v", err)
	}

	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate (load) failed: %v", err)
	}

	if first.Address() != second.Address() {
		t.Error("LoadOrGenerate did not reuse the saved identity")
	}
}
