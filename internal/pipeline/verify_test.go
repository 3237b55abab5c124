package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

func transformed(t *testing.T, cfg *policy.Config) (*ir.Unit, *ir.Unit) {
	t.Helper()
	original := sampleUnit()
	res := run(t, original, cfg)
	return original, res.Unit
}

func verifyCode(t *testing.T, err error) VerifyCode {
	t.Helper()
	var ve *VerifyError
	require.True(t, errors.As(err, &ve), "expected a VerifyError, got %v", err)
	return ve.Code
}

func TestVerifyPassesCleanRun(t *testing.T) {
	original, out := transformed(t, litePolicy())
	assert.NoError(t, Verify(original, out))
}

func TestVerifyPassesSharedDeepRoutine(t *testing.T) {
	cfg := policy.Default()
	cfg.Deep = true
	cfg.Seed = 7

	original, out := transformed(t, cfg)
	require.NotEmpty(t, out.Decoders, "deep without inline expansion declares a shared routine")
	assert.NoError(t, Verify(original, out))
}

func TestVerifyPassesInlineDeep(t *testing.T) {
	cfg := policy.Default()
	cfg.Deep = true
	cfg.DeepInline = true
	cfg.Seed = 7

	original, out := transformed(t, cfg)
	assert.Empty(t, out.Decoders)
	assert.NoError(t, Verify(original, out))
}

func TestVerifyDetectsTamperedStorage(t *testing.T) {
	original, out := transformed(t, litePolicy())
	out.Global("magic").Init.Words[0] ^= 1

	err := Verify(original, out)
	require.Error(t, err)
	assert.Equal(t, VerifyStorageMismatch, verifyCode(t, err))
}

func TestVerifyDetectsBareRead(t *testing.T) {
	original, out := transformed(t, litePolicy())

	// Strip the decode wrapper from the read site.
	ret := out.Funcs[0].Body[0].(*ir.Return)
	bin := ret.X.(*ir.Bin)
	dec := bin.R.(*ir.Decode)
	bin.R = dec.X

	err := Verify(original, out)
	require.Error(t, err)
	assert.Equal(t, VerifyBareRead, verifyCode(t, err))
}

func TestVerifyDetectsWrongLayers(t *testing.T) {
	original, out := transformed(t, litePolicy())

	ret := out.Funcs[0].Body[0].(*ir.Return)
	bin := ret.X.(*ir.Bin)
	dec := bin.R.(*ir.Decode)
	dec.Layers[0].Key ^= 1

	err := Verify(original, out)
	require.Error(t, err)
	assert.Equal(t, VerifyWrongLayers, verifyCode(t, err))
}

func TestVerifyDetectsUnknownRoutine(t *testing.T) {
	cfg := policy.Default()
	cfg.Deep = true
	cfg.Seed = 7

	original, out := transformed(t, cfg)
	out.Decoders = nil

	err := Verify(original, out)
	require.Error(t, err)
	assert.Equal(t, VerifyUnknownRoutine, verifyCode(t, err))
}

func TestVerifyUntransformedUnit(t *testing.T) {
	u := sampleUnit()
	assert.NoError(t, Verify(sampleUnit(), u), "a unit with no encodings trivially verifies against itself")
}

func TestVerifyArrayStorage(t *testing.T) {
	original := &ir.Unit{
		Name: "sample",
		Globals: []*ir.Variable{{
			Name:    "table",
			Scope:   ir.ScopeGlobal,
			Type:    u32(),
			IsArray: true,
			Len:     4,
			Init:    ir.Const{Words: []ir.Word{1, 2, 3, 4}},
		}},
		Funcs: []*ir.Func{{
			Name: "lookup",
			Body: []ir.Stmt{&ir.Return{X: &ir.Load{Var: "table", Index: &ir.Load{Var: "i"}}}},
		}},
	}
	res := run(t, original, litePolicy())
	assert.NoError(t, Verify(original, res.Unit))

	res.Unit.Global("table").Init.Words[2] ^= 1
	err := Verify(original, res.Unit)
	require.Error(t, err)
	assert.Equal(t, VerifyStorageMismatch, verifyCode(t, err))
}
