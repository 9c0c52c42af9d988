package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

func TestSource_StreamObjectsEmbedsParams(t *testing.T) {
	src := New(2)
	src.PutTMO(model.TMO{ID: 1})
	src.PutMO(
		model.MO{ID: 3, TMOID: 1},
		model.MO{ID: 1, TMOID: 1},
		model.MO{ID: 2, TMOID: 1},
		model.MO{ID: 4, TMOID: 9},
	)
	src.PutPRM(model.PRM{ID: 7, MOID: 2, TPRMID: 5}, model.PRM{ID: 8, MOID: 2, TPRMID: 6})

	var ids []int64
	var sizes []int
	err := src.StreamObjects(context.Background(), 1, func(mos []model.MO) error {
		sizes = append(sizes, len(mos))
		for _, mo := range mos {
			ids = append(ids, mo.ID)
			if mo.ID == 2 {
				assert.Len(t, mo.Params, 2)
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, []int{2, 1}, sizes)
}

func TestSource_ParameterTypes(t *testing.T) {
	src := New(0)
	src.PutTMO(model.TMO{ID: 1})
	src.PutTPRM(model.TPRM{ID: 2, TMOID: 1}, model.TPRM{ID: 1, TMOID: 1}, model.TPRM{ID: 3, TMOID: 2})

	tprms, err := src.ParameterTypes(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tprms, 2)
	assert.Equal(t, int64(1), tprms[0].ID)

	_, err = src.ParameterTypes(context.Background(), 2)
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestSource_StreamCancelled(t *testing.T) {
	src := New(1)
	src.PutPRM(model.PRM{ID: 1, TPRMID: 1}, model.PRM{ID: 2, TPRMID: 1})
	ctx, cancel := context.WithCancel(context.Background())

	err := src.StreamParameters(ctx, 1, func([]model.PRM) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadSnapshot(t *testing.T) {
	snap, err := ReadSnapshot(strings.NewReader(`
tmo:
  - {id: 1, name: Site}
tprm:
  - {id: 10, name: Height, tmo_id: 1, val_type: int}
mo:
  - {id: 100, name: S1, tmo_id: 1, active: true}
prm:
  - {id: 1000, value: "42", tprm_id: 10, mo_id: 100}
`))
	require.NoError(t, err)
	require.Len(t, snap.TPRMs, 1)
	assert.Equal(t, model.KindInt, snap.TPRMs[0].Kind)

	src := New(0)
	src.Put(snap)
	var mos []model.MO
	require.NoError(t, src.StreamObjects(context.Background(), 1, func(chunk []model.MO) error {
		mos = append(mos, chunk...)
		return nil
	}))
	require.Len(t, mos, 1)
	assert.Equal(t, "S1", mos[0].Name)
	require.Len(t, mos[0].Params, 1)
	assert.Equal(t, "42", mos[0].Params[0].Value)

	empty, err := ReadSnapshot(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.TMOs)

	_, err = ReadSnapshot(strings.NewReader("tmo: [{id: x}]"))
	assert.Error(t, err)
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.yml"), 0)
	assert.Error(t, err)
}
