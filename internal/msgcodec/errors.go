package msgcodec

import "errors"

var (
	// ErrMalformedPayload is returned when a structured payload does not decode
	// under the SetMessageInput schema: truncated, wrong layout or trailing bytes.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidEncoding is returned when a payload expected to be text is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid utf-8 sequence")
	// ErrUnknownInputKind is returned by Normalize on a zero Input.
	ErrUnknownInputKind = errors.New("unknown input kind")
)
