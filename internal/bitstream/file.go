package bitstream

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile returns the contents of path as a bit sequence.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bits: %w", err)
	}
	return BytesToBits(data), nil
}

// WriteFile packs bits into bytes and writes them to path, creating parent
// directories as needed.
func WriteFile(path string, bits []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("write bits: %w", err)
		}
	}
	if err := os.WriteFile(path, BitsToBytes(bits), 0644); err != nil {
		return fmt.Errorf("write bits: %w", err)
	}
	return nil
}
