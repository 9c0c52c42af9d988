package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inventory/internal/inventory/model"
)

func TestDecodeCollection_PythonPickles(t *testing.T) {
	cases := []struct {
		name string
		hex  string
		want []any
	}{
		{"protocol4 ints", "80049509000000000000005d94284b014b02652e", []any{int64(1), int64(2)}},
		{"protocol5 ints", "80059509000000000000005d94284b014b02652e", []any{int64(1), int64(2)}},
		{"protocol2 strings", "80025d71002858010000006171015801000000627102652e", []any{"a", "b"}},
		{"mixed scalars", "80049510000000000000005d9428473ff8000000000000884e652e", []any{1.5, true, nil}},
		{"nested lists", "80049512000000000000005d94285d94284b014b02655d944b0361652e", []any{[]any{int64(1), int64(2)}, []any{int64(3)}}},
		{"empty", "80045d942e", []any{}},
		{"signed ints", "80049514000000000000005d94284afbffffff4a701101004a90eefeff652e", []any{int64(-5), int64(70000), int64(-70000)}},
		{"tuple", "80049507000000000000004b074b0886942e", []any{int64(7), int64(8)}},
		{"protocol0 ints", "286c70300a49310a6149320a612e", []any{int64(1), int64(2)}},
		{"protocol0 strings", "286c70300a56610a70310a6156620a70320a612e", []any{"a", "b"}},
		{"set", "8004950b000000000000008f94284b014b024b03902e", []any{int64(1), int64(2), int64(3)}},
		{"frozenset", "8004950c00000000000000288c0162948c01619491942e", []any{"a", "b"}},
		{"bytes", "80035d7100430278797101612e", []any{"xy"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCollection(tc.hex)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeCollection_Errors(t *testing.T) {
	_, err := DecodeCollection("zz")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeCollection("80044b012e")
	assert.ErrorIs(t, err, ErrInvalidValue, "scalar pickle is not a collection")

	_, err = DecodeCollection("80045d28")
	assert.ErrorIs(t, err, ErrInvalidValue, "truncated")

	// l = [1]; l.append(l)
	_, err = DecodeCollection("80025d7100284b016800652e")
	assert.ErrorIs(t, err, ErrInvalidValue, "list containing itself")
}

func TestEncodeCollection_RoundTrip(t *testing.T) {
	items := []any{int64(1), int64(300), int64(-70000), int64(1) << 40, "x", 2.5, true, nil, []any{int64(4)}}
	raw, err := EncodeCollection(items)
	require.NoError(t, err)
	got, err := DecodeCollection(raw)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	raw, err = EncodeCollection([]any{int64(1), int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "80045d284b014b02652e", raw)
}

func TestDecode_Scalars(t *testing.T) {
	cases := []struct {
		raw  string
		kind model.Kind
		want any
	}{
		{"abc", model.KindStr, "abc"},
		{"", model.KindStr, ""},
		{"=A1+1", model.KindFormula, "=A1+1"},
		{"42", model.KindInt, int64(42)},
		{"12.0", model.KindInt, int64(12)},
		{"", model.KindInt, nil},
		{"1.25", model.KindFloat, 1.25},
		{"True", model.KindBool, true},
		{"False", model.KindBool, false},
		{"2024-02-29", model.KindDate, "2024-02-29"},
		{"2024-02-29 10:11:12", model.KindDatetime, "2024-02-29T10:11:12Z"},
		{"7", model.KindSequence, int64(7)},
		{"9", model.KindObjectLink, int64(9)},
	}
	for _, tc := range cases {
		got, err := Decode(tc.raw, tc.kind, false)
		require.NoError(t, err, "%s/%q", tc.kind, tc.raw)
		assert.Equal(t, tc.want, got, "%s/%q", tc.kind, tc.raw)
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("9223372036854775808", model.KindInt, false)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Decode("abc", model.KindInt, false)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Decode("maybe", model.KindBool, false)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Decode("x", model.KindUnknown, false)
	assert.ErrorIs(t, err, ErrUnknownKind)

	// [2**63] pickled by Python.
	_, err = Decode("8004950f000000000000005d948a09000000000000008000612e", model.KindInt, true)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// The same list pickled with protocol 0.
	_, err = Decode("286c70300a4c393232333337323033363835343737353830384c0a612e", model.KindInt, true)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestDecode_Multiple(t *testing.T) {
	raw, err := EncodeCollection([]any{"1", "2"})
	require.NoError(t, err)
	got, err := Decode(raw, model.KindInt, true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, got)

	raw, err = EncodeCollection([]any{int64(3), int64(4)})
	require.NoError(t, err)
	got, err = Decode(raw, model.KindStr, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"3", "4"}, got)

	got, err = Decode("", model.KindInt, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveIDs(t *testing.T) {
	ref, err := ResolveIDs("15", model.KindObjectLink, false)
	require.NoError(t, err)
	id, ok := ref.Single()
	assert.True(t, ok)
	assert.Equal(t, int64(15), id)
	assert.Equal(t, int64(15), ref.Projection())

	raw, err := EncodeCollection([]any{int64(3), int64(4)})
	require.NoError(t, err)
	ref, err = ResolveIDs(raw, model.KindParameterLink, true)
	require.NoError(t, err)
	assert.Equal(t, Ref{IDs: []int64{3, 4}, Multiple: true}, ref)
	pos, ok := ref.Position(4, map[int64]any{3: "x"})
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
	pos, ok = ref.Position(4, nil)
	assert.True(t, ok)
	assert.Equal(t, 0, pos, "an unresolved id before the target takes no slot")
	_, ok = ref.Position(5, nil)
	assert.False(t, ok)

	back, err := FromProjection(ref.Projection())
	require.NoError(t, err)
	assert.Equal(t, ref, back)

	_, err = ResolveIDs("3", model.KindStr, false)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = ResolveIDs("[3]", model.KindObjectLink, true)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestObjectLinkValue(t *testing.T) {
	names := map[int64]string{1: "X"}

	v, ok := ObjectLinkValue(Ref{IDs: []int64{1}}, names)
	assert.True(t, ok)
	assert.Equal(t, "X", v)

	v, ok = ObjectLinkValue(Ref{IDs: []int64{1, 2}, Multiple: true}, names)
	assert.True(t, ok)
	assert.Equal(t, []any{"X"}, v)

	_, ok = ObjectLinkValue(Ref{IDs: []int64{2}}, names)
	assert.False(t, ok)
	_, ok = ObjectLinkValue(Ref{IDs: []int64{2}, Multiple: true}, names)
	assert.False(t, ok)
}

func TestParameterLinkValue_Combinations(t *testing.T) {
	scalarTargets := map[int64]any{10: "a", 11: "b"}
	listTargets := map[int64]any{10: []any{"a1", "a2"}, 11: []any{"b1"}}

	v, ok := ParameterLinkValue(Ref{IDs: []int64{10}}, scalarTargets)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = ParameterLinkValue(Ref{IDs: []int64{10}}, listTargets)
	assert.True(t, ok)
	assert.Equal(t, []any{"a1", "a2"}, v)

	v, ok = ParameterLinkValue(Ref{IDs: []int64{10, 11, 12}, Multiple: true}, scalarTargets)
	assert.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, v)

	v, ok = ParameterLinkValue(Ref{IDs: []int64{10, 11}, Multiple: true}, listTargets)
	assert.True(t, ok)
	assert.Equal(t, []any{[]any{"a1", "a2"}, []any{"b1"}}, v)

	_, ok = ParameterLinkValue(Ref{IDs: []int64{99}, Multiple: true}, listTargets)
	assert.False(t, ok)
}
