// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// ZeroHash represents a hash code of zeros. It is the previous hash of the
// first block and the merkle root of an empty set of transactions.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// HashLength is the number of bytes produced by the hash functions.
const HashLength = sha256.Size

// addressVersion is the version byte prepended to the public key hash
// before the Base58Check encoding. The value matches a P2PKH address.
const addressVersion = 0x00

// =============================================================================

// DoubleSHA256 applies the sha256 hash function twice to the data.
func DoubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Hash returns a unique string for the value. The value is marshaled to
// JSON and the double sha256 of those bytes is hex encoded.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	return hexutil.Encode(DoubleSHA256(data))
}

// ToHashBytes decodes a hex encoded hash and validates its length.
func ToHashBytes(h string) ([]byte, error) {
	b, err := hexutil.Decode(h)
	if err != nil {
		return nil, err
	}

	if len(b) != HashLength {
		return nil, errors.New("invalid hash length")
	}

	return b, nil
}

// =============================================================================

// Sign uses the specified private key to sign the digest. The signature is
// deterministic and returned in the 64 byte [R|S] format.
func Sign(digest []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	if len(digest) != HashLength {
		return nil, errors.New("digest must be 32 bytes")
	}

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, err
	}

	// Drop the recovery id, the public key travels with every input.
	rs := sig[:crypto.RecoveryIDOffset]

	if !crypto.VerifySignature(crypto.CompressPubkey(&privateKey.PublicKey), digest, rs) {
		return nil, errors.New("invalid signature")
	}

	return rs, nil
}

// Verify checks the signature was produced over the digest by the owner of
// the public key. Any malformed input results in false.
func Verify(publicKey []byte, digest []byte, sig []byte) bool {
	if len(digest) != HashLength || len(sig) != crypto.RecoveryIDOffset {
		return false
	}

	if _, err := crypto.DecompressPubkey(publicKey); err != nil {
		if _, err := crypto.UnmarshalPubkey(publicKey); err != nil {
			return false
		}
	}

	return crypto.VerifySignature(publicKey, digest, sig)
}

// PublicKeyBytes returns the 33 byte compressed form of the public key.
func PublicKeyBytes(pk ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(&pk)
}

// =============================================================================

// DeriveAddress converts the public key into an owner identifier. This is
// the Base58Check encoding of the RIPEMD160 of the SHA256 of the key.
func DeriveAddress(publicKey []byte) (string, error) {
	if _, err := crypto.DecompressPubkey(publicKey); err != nil {
		return "", err
	}

	sh := sha256.Sum256(publicKey)

	rh := ripemd160.New()
	rh.Write(sh[:])

	payload := append([]byte{addressVersion}, rh.Sum(nil)...)
	checksum := DoubleSHA256(payload)[:4]

	return base58.Encode(append(payload, checksum...)), nil
}

// PublicKeyToAddress derives the owner identifier for the public key.
func PublicKeyToAddress(pk ecdsa.PublicKey) string {

	// A key produced by the crypto package always compresses.
	address, _ := DeriveAddress(PublicKeyBytes(pk))
	return address
}

// ValidateAddress checks the version and checksum of an address.
func ValidateAddress(address string) error {
	data, err := base58.Decode(address)
	if err != nil {
		return err
	}

	if len(data) != 25 {
		return errors.New("invalid address length")
	}

	if data[0] != addressVersion {
		return errors.New("invalid address version")
	}

	payload, checksum := data[:21], data[21:]
	if !bytes.Equal(DoubleSHA256(payload)[:4], checksum) {
		return errors.New("invalid address checksum")
	}

	return nil
}

// =============================================================================

// doubleSHA256 implements the hash.Hash interface so the double sha256 can
// be used as a hash strategy.
type doubleSHA256 struct {
	hash.Hash
}

// NewDoubleSHA256 constructs a hash.Hash that applies sha256 twice.
func NewDoubleSHA256() hash.Hash {
	return &doubleSHA256{Hash: sha256.New()}
}

// Sum appends the double sha256 of the written data to b.
func (d *doubleSHA256) Sum(b []byte) []byte {
	first := d.Hash.Sum(nil)
	second := sha256.Sum256(first)
	return append(b, second[:]...)
}
