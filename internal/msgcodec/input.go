package msgcodec

import (
	"fmt"
	"unicode/utf8"
)

// SetMessageInput is the one-field record carried by the structured path.
// Its wire form is a single borsh string: u32 LE length || UTF-8 bytes.
type SetMessageInput struct {
	Msg string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (in SetMessageInput) MarshalBinary() ([]byte, error) {
	return EncodeSetMessageInput(in.Msg), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Every byte of data
// must belong to the record.
func (in *SetMessageInput) UnmarshalBinary(data []byte) error {
	msg, rest, err := ReadString(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: %d trailing bytes after msg field", ErrMalformedPayload, len(rest))
	}
	in.Msg = msg
	return nil
}

// EncodeSetMessageInput serializes {msg: msg} under the structured schema.
func EncodeSetMessageInput(msg string) []byte {
	return AppendString(make([]byte, 0, EncodedStringSize(msg)), msg)
}

// DecodeSetMessageInput decodes a structured payload.
func DecodeSetMessageInput(data []byte) (SetMessageInput, error) {
	var in SetMessageInput
	if err := in.UnmarshalBinary(data); err != nil {
		return SetMessageInput{}, err
	}
	return in, nil
}

// Kind identifies which encoding an Input carries.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindDirect is a message that already is a string.
	KindDirect
	// KindStructured is a SetMessageInput encoded with the structured schema.
	KindStructured
	// KindText is a raw buffer that must be valid UTF-8.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindStructured:
		return "structured"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Input is a message payload in one of the accepted encodings.
// The zero value is not valid.
type Input struct {
	kind    Kind
	text    string
	payload []byte
}

// Direct wraps a message that arrived as a string.
func Direct(msg string) Input {
	return Input{kind: KindDirect, text: msg}
}

// Structured wraps a payload encoded with the SetMessageInput schema.
func Structured(payload []byte) Input {
	return Input{kind: KindStructured, payload: payload}
}

// Text wraps a raw payload that is expected to be UTF-8 text.
func Text(payload []byte) Input {
	return Input{kind: KindText, payload: payload}
}

// Kind reports the encoding of in.
func (in Input) Kind() Kind {
	return in.kind
}

// Size returns the payload size in bytes before normalization.
func (in Input) Size() int {
	if in.kind == KindDirect {
		return len(in.text)
	}
	return len(in.payload)
}

// Normalize returns the plain message text. Decoding errors wrap
// ErrMalformedPayload or ErrInvalidEncoding and are never recovered here.
func (in Input) Normalize() (string, error) {
	switch in.kind {
	case KindDirect:
		return in.text, nil
	case KindStructured:
		decoded, err := DecodeSetMessageInput(in.payload)
		if err != nil {
			return "", err
		}
		return decoded.Msg, nil
	case KindText:
		if !utf8.Valid(in.payload) {
			return "", fmt.Errorf("%w: at byte offset %d", ErrInvalidEncoding, firstInvalid(in.payload))
		}
		return string(in.payload), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownInputKind, in.kind)
	}
}

// firstInvalid returns the offset of the first byte that starts an invalid sequence.
func firstInvalid(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
