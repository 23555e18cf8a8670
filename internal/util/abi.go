package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// hardhatArtifact is the subset of a Hardhat/Foundry compiler artifact this
// loader needs: the artifact's "abi" field, verbatim compiler JSON.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat-style compiled artifact JSON
// file and returns its parsed ABI.
func LoadABIFromHardhatArtifact(path string) (*abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return nil, fmt.Errorf("parse ABI in %s: %w", path, err)
	}
	return &parsed, nil
}

// LoadABI reads a bare ABI JSON file (just the array of entries, no
// surrounding artifact metadata).
func LoadABI(path string) (*abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ABI %s: %w", path, err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse ABI %s: %w", path, err)
	}
	return &parsed, nil
}

// Hex2Bytes decodes a hex string, tolerating an optional "0x" prefix.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
