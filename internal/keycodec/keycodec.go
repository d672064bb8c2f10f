package keycodec

import (
	"fmt"
)

// Key type markers are non-printable bytes to avoid any user ASCII collision.
const (
	KeyTypeKV     byte = 254
	KeyTypeSystem byte = 252
)

// KeyKind is the type marker carried by every stored key.
type KeyKind byte

const (
	KeyKindUnknown KeyKind = 0
	KeyKindKV      KeyKind = KeyKind(KeyTypeKV)
	KeyKindSystem  KeyKind = KeyKind(KeyTypeSystem)
)

// ParseKeyKind returns the KeyKind associated with the key.
func ParseKeyKind(key []byte) KeyKind {
	if len(key) == 0 {
		return KeyKindUnknown
	}
	switch key[0] {
	case KeyTypeKV:
		return KeyKindKV
	case KeyTypeSystem:
		return KeyKindSystem
	default:
		return KeyKindUnknown
	}
}

func (k KeyKind) String() string {
	switch k {
	case KeyKindKV:
		return "KV"
	case KeyKindSystem:
		return "System"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// KeyKV builds the record key for an account id.
// Format: [0xFE][accountID].
//
// The marker byte keeps an empty account id distinct from a missing key,
// since the B-tree drivers refuse zero length keys.
func KeyKV(k []byte) []byte {
	b := make([]byte, 1+len(k))
	b[0] = KeyTypeKV
	copy(b[1:], k)
	return b
}

// Format: [0xFC][name].
func KeySystem(name []byte) []byte {
	b := make([]byte, 1+len(name))
	b[0] = KeyTypeSystem
	copy(b[1:], name)
	return b
}

// UserKey strips the marker from a record key. ok is false when the key
// is not a record key.
func UserKey(key []byte) ([]byte, bool) {
	if ParseKeyKind(key) != KeyKindKV {
		return nil, false
	}
	return key[1:], true
}
