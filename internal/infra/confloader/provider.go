package confloader

import "errors"

var (
	errReadBytes = errors.New("confloader: map provider does not support ReadBytes")
	errRead      = errors.New("confloader: bytes provider does not support Read")
)

// mapProvider is a koanf provider over an in-memory map.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// bytesProvider is a koanf provider over raw bytes for a parser.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, errRead
}
