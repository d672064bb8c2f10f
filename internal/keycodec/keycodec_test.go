package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyKV(t *testing.T) {
	got := KeyKV([]byte("bob"))
	want := append([]byte{KeyTypeKV}, []byte("bob")...)
	assert.Equal(t, want, got)
	assert.Equal(t, KeyKindKV, ParseKeyKind(got))
}

func TestKeyKV_EmptyAccount(t *testing.T) {
	got := KeyKV(nil)
	assert.Equal(t, []byte{KeyTypeKV}, got)
}

func TestKeyKV_DoesNotAliasInput(t *testing.T) {
	in := make([]byte, 3, 16)
	copy(in, "abc")
	key := KeyKV(in)
	in[0] = 'z'
	assert.Equal(t, []byte{KeyTypeKV, 'a', 'b', 'c'}, key)
}

func TestKeySystem(t *testing.T) {
	got := KeySystem([]byte("bloom"))
	want := append([]byte{KeyTypeSystem}, []byte("bloom")...)
	assert.Equal(t, want, got)
	assert.Equal(t, KeyKindSystem, ParseKeyKind(got))
}

func TestUserKey(t *testing.T) {
	user, ok := UserKey(KeyKV([]byte("alice.near")))
	assert.True(t, ok)
	assert.Equal(t, []byte("alice.near"), user)

	_, ok = UserKey(KeySystem([]byte("clean")))
	assert.False(t, ok)

	_, ok = UserKey(nil)
	assert.False(t, ok)
}

func TestKeyKind_String(t *testing.T) {
	assert.Equal(t, "KV", KeyKindKV.String())
	assert.Equal(t, "System", KeyKindSystem.String())
	assert.Equal(t, "Unknown(7)", KeyKind(7).String())
}
