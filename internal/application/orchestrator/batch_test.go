package orchestrator

import (
	"errors"
	"testing"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playTemplate() Template {
	return Template{
		Name:   "play",
		Target: "0x1::game::play",
		Args: []domain.Argument{
			domain.SharedObject("0xh0", 3, true),
			domain.PureU64(0),
			domain.Payment(1000),
		},
	}
}

func TestBuildBatch(t *testing.T) {
	gen := func(i int, base []domain.Argument) ([]domain.Argument, error) {
		base[1] = domain.PureU64(uint64(i * 10))
		return base, nil
	}

	reqs, err := BuildBatch(playTemplate(), 4, gen)
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	for i, req := range reqs {
		assert.Equal(t, []string{"play-0", "play-1", "play-2", "play-3"}[i], req.ID)
		assert.Equal(t, domain.PureU64(uint64(i*10)), req.Args[1])
		assert.Nil(t, req.Resource)
		require.NoError(t, req.Validate())
	}

	reqs[0].Args[0].Object.Mutable = false
	reqs[0].Args[2].Amount = 1
	assert.True(t, reqs[1].Args[0].Object.Mutable)
	assert.Equal(t, uint64(1000), reqs[1].Args[2].Amount)
	assert.True(t, playTemplate().Args[0].Object.Mutable)
}

func TestBuildBatchIsDeterministic(t *testing.T) {
	tmpl := playTemplate()

	a, err := BuildBatch(tmpl, 3, nil)
	require.NoError(t, err)
	b, err := BuildBatch(tmpl, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildBatchDoesNotTouchTemplate(t *testing.T) {
	tmpl := playTemplate()
	gen := func(i int, base []domain.Argument) ([]domain.Argument, error) {
		base[0].Object.ID = "0xother"
		return base, nil
	}

	_, err := BuildBatch(tmpl, 2, gen)
	require.NoError(t, err)
	assert.Equal(t, "0xh0", tmpl.Args[0].Object.ID)
}

func TestBuildBatchErrors(t *testing.T) {
	_, err := BuildBatch(Template{Target: "0x1::game::play"}, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = BuildBatch(playTemplate(), -1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	boom := errors.New("boom")
	_, err = BuildBatch(playTemplate(), 3, func(i int, base []domain.Argument) ([]domain.Argument, error) {
		if i == 2 {
			return nil, boom
		}
		return base, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "play-2")

	reqs, err := BuildBatch(playTemplate(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
