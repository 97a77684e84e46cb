// Package jsoncodec centralises the JSON encoder used for stage reports.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// Map keys are sorted so reports are stable across runs.
var defaultConfig = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	ValidateString:   true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Encode writes v followed by a newline.
func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}
