package value

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// Opcodes written by EncodeCollection.
const (
	opMark        = '('
	opStop        = '.'
	opNone        = 'N'
	opBinInt      = 'J'
	opBinInt1     = 'K'
	opBinInt2     = 'M'
	opBinFloat    = 'G'
	opBinUnicode  = 'X'
	opAppends     = 'e'
	opEmptyList   = ']'
	opProto       = 0x80
	opNewTrue     = 0x88
	opNewFalse    = 0x89
	opLong1       = 0x8a
	opShortBinUni = 0x8c
)

// DecodeCollection decodes a hex-encoded pickled list, tuple or set. Set
// elements come back sorted. Integers that do not fit in int64 come back as
// *big.Int.
func DecodeCollection(raw string) ([]any, error) {
	data, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: not hex: %v", ErrInvalidValue, err)
	}
	v, err := pickle.Loads(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	out, err := plain(v, map[any]bool{})
	if err != nil {
		return nil, err
	}
	list, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: pickled value is %T, not a collection", ErrInvalidValue, v)
	}
	return list, nil
}

// plain converts unpickled values to []any, int64, float64, string, bool and
// nil. open holds the collections being converted, so a collection that
// contains itself is rejected.
func plain(v any, open map[any]bool) (any, error) {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return t, nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case *big.Int:
		if t.IsInt64() {
			return t.Int64(), nil
		}
		return t, nil
	case []byte:
		return string(t), nil
	case *types.List:
		return plainItems(t, []any(*t), open)
	case *types.Tuple:
		return plainItems(t, []any(*t), open)
	case *types.Set:
		items := make([]any, 0, len(*t))
		for k := range *t {
			items = append(items, k)
		}
		return sortedItems(plainItems(t, items, open))
	case *types.FrozenSet:
		items := make([]any, 0, len(*t))
		for k := range *t {
			items = append(items, k)
		}
		return sortedItems(plainItems(t, items, open))
	default:
		return nil, fmt.Errorf("%w: unsupported pickled type %T", ErrInvalidValue, v)
	}
}

func plainItems(key any, items []any, open map[any]bool) (any, error) {
	if open[key] {
		return nil, fmt.Errorf("%w: pickled collection contains itself", ErrInvalidValue)
	}
	open[key] = true
	defer delete(open, key)

	out := make([]any, len(items))
	for i, item := range items {
		v, err := plain(item, open)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func sortedItems(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	items := v.([]any)
	slices.SortStableFunc(items, compareItems)
	return items, nil
}

// compareItems orders set elements: integers, then floats, then strings.
func compareItems(a, b any) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64))
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return cmp.Compare(x, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case int64:
		return 0
	case float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

// EncodeCollection pickles a list with protocol 4 and hex-encodes it.
func EncodeCollection(items []any) (string, error) {
	var buf bytes.Buffer
	buf.Write([]byte{opProto, 4})
	if err := encodeList(&buf, items); err != nil {
		return "", err
	}
	buf.WriteByte(opStop)
	return hex.EncodeToString(buf.Bytes()), nil
}

func encodeList(buf *bytes.Buffer, items []any) error {
	buf.WriteByte(opEmptyList)
	if len(items) == 0 {
		return nil
	}
	buf.WriteByte(opMark)
	for _, item := range items {
		if err := encodeItem(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(opAppends)
	return nil
}

func encodeItem(buf *bytes.Buffer, item any) error {
	switch v := item.(type) {
	case nil:
		buf.WriteByte(opNone)
	case bool:
		if v {
			buf.WriteByte(opNewTrue)
		} else {
			buf.WriteByte(opNewFalse)
		}
	case int:
		encodeInt(buf, int64(v))
	case int64:
		encodeInt(buf, v)
	case float64:
		buf.WriteByte(opBinFloat)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	case string:
		if len(v) < 256 {
			buf.WriteByte(opShortBinUni)
			buf.WriteByte(byte(len(v)))
		} else {
			buf.WriteByte(opBinUnicode)
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(len(v)))
			buf.Write(b[:])
		}
		buf.WriteString(v)
	case []any:
		return encodeList(buf, v)
	case []int64:
		items := make([]any, len(v))
		for i, n := range v {
			items[i] = n
		}
		return encodeList(buf, items)
	default:
		return fmt.Errorf("%w: cannot pickle %T", ErrInvalidValue, item)
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, n int64) {
	switch {
	case n >= 0 && n < 1<<8:
		buf.WriteByte(opBinInt1)
		buf.WriteByte(byte(n))
	case n >= 0 && n < 1<<16:
		buf.WriteByte(opBinInt2)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	case n >= math.MinInt32 && n <= math.MaxInt32:
		buf.WriteByte(opBinInt)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
		buf.Write(b[:])
	default:
		buf.WriteByte(opLong1)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		buf.WriteByte(8)
		buf.Write(b[:])
	}
}
