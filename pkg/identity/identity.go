// Package identity implements the secp256k1 owner identity used to sign
// single owner chunks and postage stamps: key generation, Ethereum
// address derivation, EIP-191 signing, signer recovery and persistence.
package identity

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// recoveryOffset is added to the recovery id on the wire (Ethereum style v)
const recoveryOffset = 27

// Signer signs arbitrary data on behalf of an owner address
type Signer interface {
	// Sign returns a 65-byte r ‖ s ‖ v signature over the EIP-191 text hash of data
	Sign(data []byte) ([]byte, error)

	// Address returns the Ethereum address of the signing key
	Address() common.Address
}

// Identity is a secp256k1 key pair and its cached Ethereum address
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// keyFile is the on-disk form of an identity
type keyFile struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

// GenerateIdentity creates a new identity with a fresh key
func GenerateIdentity() (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return FromPrivateKey(key), nil
}

// FromPrivateKey wraps an existing key
func FromPrivateKey(key *ecdsa.PrivateKey) *Identity {
	return &Identity{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// FromHex parses a 32-byte hex private key, with or without a 0x prefix
func FromHex(hexKey string) (*Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, swarm.NewValidationError("invalid private key", err)
	}
	return FromPrivateKey(key), nil
}

// FromBytes parses a raw 32-byte private key
func FromBytes(b []byte) (*Identity, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, swarm.NewValidationError("invalid private key", err)
	}
	return FromPrivateKey(key), nil
}

// Address returns the Ethereum address of the identity
func (id *Identity) Address() common.Address {
	return id.address
}

// PublicKey returns the public half of the key
func (id *Identity) PublicKey() *ecdsa.PublicKey {
	return &id.privateKey.PublicKey
}

// Sign signs the EIP-191 text hash of data
func (id *Identity) Sign(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), id.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[constants.SignatureSize-1] += recoveryOffset
	return sig, nil
}

// RecoverAddress returns the address whose key produced sig over data
func RecoverAddress(sig, data []byte) (common.Address, error) {
	if len(sig) != constants.SignatureSize {
		return common.Address{}, swarm.NewValidationError(
			fmt.Sprintf("invalid signature size: got %d, want %d", len(sig), constants.SignatureSize), nil)
	}

	normalized := make([]byte, constants.SignatureSize)
	copy(normalized, sig)
	if normalized[constants.SignatureSize-1] >= recoveryOffset {
		normalized[constants.SignatureSize-1] -= recoveryOffset
	}

	pub, err := crypto.SigToPub(accounts.TextHash(data), normalized)
	if err != nil {
		return common.Address{}, swarm.NewIntegrityError("signature recovery failed", nil, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Keccak256 hashes the concatenation of data
func Keccak256(data ...[]byte) swarm.Hash {
	var h swarm.Hash
	copy(h[:], crypto.Keccak256(data...))
	return h
}

// SaveToFile saves the identity to a JSON file
func (id *Identity) SaveToFile(filename string) error {
	// Ensure directory exists
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(keyFile{
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(id.privateKey)),
		Address:    id.address.Hex(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}

	return nil
}

// LoadFromFile loads an identity from a JSON file and checks the stored address
func LoadFromFile(filename string) (*Identity, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}

	id, err := FromHex(kf.PrivateKey)
	if err != nil {
		return nil, err
	}

	if kf.Address != "" && !strings.EqualFold(kf.Address, id.address.Hex()) {
		return nil, swarm.NewIntegrityError(
			fmt.Sprintf("identity file address %s does not match key address %s", kf.Address, id.address.Hex()), nil, nil)
	}

	return id, nil
}

// LoadOrGenerate loads the identity at filename, creating and saving one if absent
func LoadOrGenerate(filename string) (*Identity, error) {
	if _, err := os.Stat(filename); err == nil {
		return LoadFromFile(filename)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat identity file: %w", err)
	}

	id, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := id.SaveToFile(filename); err != nil {
		return nil, err
	}
	return id, nil
}
