package cardimport

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// charaKeyword is the tEXt keyword character cards embed their payload
// under, followed by the null separator.
var charaKeyword = append([]byte("chara"), 0)

var (
	// ErrNotPNG is returned when the data does not start with the PNG
	// signature.
	ErrNotPNG = errors.New("not a png file")
	// ErrNoCardData is returned when no chara tEXt chunk is present.
	ErrNoCardData = errors.New("png carries no character data")
)

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// extractPNGPayload walks the chunk stream for a tEXt chunk keyed
// "chara" and returns its base64-decoded payload.
func extractPNGPayload(data []byte) ([]byte, error) {
	if !IsPNG(data) {
		return nil, ErrNotPNG
	}
	offset := len(pngSignature)
	for offset+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset:]))
		chunkType := string(data[offset+4 : offset+8])
		if offset+8+length > len(data) {
			break
		}
		if chunkType == "tEXt" {
			body := data[offset+8 : offset+8+length]
			if bytes.HasPrefix(body, charaKeyword) {
				payload, err := base64.StdEncoding.DecodeString(string(body[len(charaKeyword):]))
				if err != nil {
					return nil, fmt.Errorf("decoding embedded character data: %w", err)
				}
				return payload, nil
			}
		}
		if chunkType == "IEND" {
			break
		}
		// length + type + data + crc
		offset += 12 + length
	}
	return nil, ErrNoCardData
}
