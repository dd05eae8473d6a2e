// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// API KEY HASHING
// =============================================================================

// API key hashes use the format pbkdf2$<iterations>$<salt-hex>$<hash-hex>
// so a config file never has to hold the plaintext key. The iteration
// count is embedded in the hash, letting it be raised for new keys
// without invalidating old ones.

const (
	// KeyHashIterations is the PBKDF2-SHA-256 iteration count for newly
	// generated hashes. OWASP recommends 600,000+ for PBKDF2-SHA-256.
	KeyHashIterations = 600000

	// keyHashSaltSize is the random salt length in bytes.
	keyHashSaltSize = 16

	// keyHashSize is the derived hash length in bytes.
	keyHashSize = 32

	// keyHashPrefix identifies the hash scheme.
	keyHashPrefix = "pbkdf2"

	// minKeyHashIterations rejects hashes weak enough to brute-force.
	minKeyHashIterations = 10000
)

// HashAPIKey derives a storable hash from an API key. The result can be
// placed in server.api_key_hash instead of the plaintext key.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("cannot hash an empty key")
	}

	salt := make([]byte, keyHashSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := pbkdf2.Key([]byte(key), salt, KeyHashIterations, keyHashSize, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		keyHashPrefix, KeyHashIterations, hex.EncodeToString(salt), hex.EncodeToString(hash)), nil
}

// VerifyKeyHash reports whether the presented key matches the stored
// hash. Malformed hashes never match.
// SECURITY: The derived hash comparison is constant-time.
func VerifyKeyHash(stored, presented string) bool {
	iterations, salt, hash, err := parseKeyHash(stored)
	if err != nil {
		return false
	}

	derived := pbkdf2.Key([]byte(presented), salt, iterations, len(hash), sha256.New)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

// ValidateKeyHash checks that a stored hash is well-formed without
// verifying any key against it.
func ValidateKeyHash(stored string) error {
	_, _, _, err := parseKeyHash(stored)
	return err
}

// parseKeyHash splits pbkdf2$<iterations>$<salt-hex>$<hash-hex> into its
// parts.
func parseKeyHash(stored string) (iterations int, salt, hash []byte, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != keyHashPrefix {
		return 0, nil, nil, fmt.Errorf("must have the form pbkdf2$<iterations>$<salt-hex>$<hash-hex>")
	}

	iterations, err = strconv.Atoi(parts[1])
	if err != nil || iterations < minKeyHashIterations {
		return 0, nil, nil, fmt.Errorf("iteration count must be an integer >= %d", minKeyHashIterations)
	}

	salt, err = hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, fmt.Errorf("invalid salt hex")
	}

	hash, err = hex.DecodeString(parts[3])
	if err != nil || len(hash) == 0 {
		return 0, nil, nil, fmt.Errorf("invalid hash hex")
	}

	return iterations, salt, hash, nil
}
