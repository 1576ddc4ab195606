// Package message implements the string framing used on top of raw socket
// transfers: UTF-8 payloads with no length prefix, decoded from fixed-size
// receive buffers and optionally batched with a delimiter.
package message

import (
	"bytes"
	"strings"
)

// DefaultDelimiter separates batched messages when the caller gives none.
const DefaultDelimiter = ","

// Encode returns the raw bytes of message. No terminator or length prefix
// is added; the receiver's buffer size is the only framing.
func Encode(message string) []byte {
	return []byte(message)
}

// Decode interprets buffer as a NUL-terminated string. It returns the bytes
// up to the first NUL byte, or the whole buffer if none is present.
//
// Parameters:
//   - buffer: A receive buffer, usually sliced to the number of bytes read
//
// Returns:
//   - The decoded string
func Decode(buffer []byte) string {
	nullIndex := bytes.IndexByte(buffer, 0)
	if nullIndex == -1 {
		return string(buffer)
	}

	return string(buffer[:nullIndex])
}

// Join batches messages into one payload separated by delimiter. An empty
// delimiter is replaced by DefaultDelimiter.
//
// Parameters:
//   - messages: The messages to join, in order
//   - delimiter: The separator placed between messages
//
// Returns:
//   - The joined payload
func Join(messages []string, delimiter string) string {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	return strings.Join(messages, delimiter)
}

// Split reverses Join. An empty payload yields no messages.
func Split(payload string, delimiter string) []string {
	if payload == "" {
		return nil
	}

	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	return strings.Split(payload, delimiter)
}
