package orchestrator

import (
	"context"
	"testing"

	"github.com/aescanero/gasrunner/pkg/adapters/manifest/file"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *file.Store {
	return file.New("", []file.Entry{
		{Type: "game", ID: "0xabc"},
		{Type: "house", ID: "0xh0"},
	})
}

func TestLoadBindings(t *testing.T) {
	b, err := LoadBindings(context.Background(), testManifest(), []string{"house", "game"})
	require.NoError(t, err)
	assert.Equal(t, []string{"game", "house"}, b.Names())
	assert.Equal(t, "0xabc", b["game"])
}

func TestLoadBindingsMissingName(t *testing.T) {
	_, err := LoadBindings(context.Background(), testManifest(), []string{"game", "vault", "bank"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "[bank vault]")
}

func TestApplyResolvesNames(t *testing.T) {
	b := Bindings{"game": "0xabc", "house": "0xh0"}

	req := domain.OperationRequest{
		ID:            "r1",
		Target:        "${game}::game::play",
		TypeArguments: []string{"${game}::chip::CHIP"},
		Args: []domain.Argument{
			domain.SymbolObject("house", true, true),
			domain.PureU64(7),
		},
	}

	out, err := b.Apply(req)
	require.NoError(t, err)

	assert.Equal(t, "0xabc::game::play", out.Target)
	assert.Equal(t, []string{"0xabc::chip::CHIP"}, out.TypeArguments)
	assert.Equal(t, "0xh0", out.Args[0].Object.ID)
	assert.True(t, out.Args[0].Object.Shared)

	assert.Equal(t, "${game}::game::play", req.Target)
	assert.Empty(t, req.Args[0].Object.ID)
}

func TestApplyUnknownName(t *testing.T) {
	b := Bindings{"game": "0xabc"}

	_, err := b.Apply(domain.OperationRequest{ID: "r1", Target: "${vault}::vault::deposit"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = b.Apply(domain.OperationRequest{
		ID:     "r2",
		Target: "0x1::game::play",
		Args:   []domain.Argument{domain.SymbolObject("house", true, true)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestApplyWithoutPlaceholders(t *testing.T) {
	var b Bindings

	req := domain.OperationRequest{ID: "r1", Target: "0x1::counter::increment", Args: []domain.Argument{domain.OwnedObject("0x5")}}
	out, err := b.Apply(req)
	require.NoError(t, err)
	assert.Equal(t, req, out)
}
