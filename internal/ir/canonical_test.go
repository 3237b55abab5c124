package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleUnit() *Unit {
	return &Unit{
		Name: "sample",
		Globals: []*Variable{
			{Name: "secret_key", Scope: ScopeGlobal, Type: ScalarType{KindSigned, 32}, Init: Const{Words: []Word{0xDEADBEEF}}},
			{Name: "magic_ratio", Scope: ScopeGlobal, Type: ScalarType{KindFloat, 32}, Init: Const{Words: []Word{0x40490FDB}}},
		},
		Funcs: []*Func{
			{Name: "main", Body: []Stmt{&Return{X: &Load{Var: "secret_key"}}}},
		},
	}
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	u := sampleUnit()

	first, err := MarshalCanonical(u)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(u)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again), "canonical output must be byte-identical across calls")
	}
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	u := &Unit{Name: "a<b&c", Globals: []*Variable{}}

	data, err := MarshalCanonical(u)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a<b&c", "HTML characters must not be escaped")
	assert.NotContains(t, string(data), `\u003c`)
	assert.NotContains(t, string(data), `\u0026`)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as NFD (e + combining acute) must normalize to the NFC single rune.
	nfd := "café"
	nfc := "café"

	a := &Unit{Name: nfd, Globals: []*Variable{}}
	b := &Unit{Name: nfc, Globals: []*Variable{}}

	da, err := MarshalCanonical(a)
	require.NoError(t, err)
	db, err := MarshalCanonical(b)
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db), "NFD and NFC spellings must canonicalize identically")
}

func TestMarshalCanonicalDoesNotMutate(t *testing.T) {
	u := sampleUnit()
	name := u.Globals[0].Name

	_, err := MarshalCanonical(u)
	require.NoError(t, err)
	assert.Equal(t, name, u.Globals[0].Name)
}

func TestMarshalCanonicalWordsAreHex(t *testing.T) {
	u := sampleUnit()

	data, err := MarshalCanonical(u)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"0xdeadbeef"`), "words must serialize as hex strings: %s", data)
}
