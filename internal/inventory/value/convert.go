// Package value converts wire-encoded parameter values into their indexed
// representation and into referenced entity ids.
//
// A scalar value arrives as its string form. A multi-valued parameter arrives
// as a hex-encoded pickled list whose elements are converted one by one.
package value

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/syntrixbase/inventory/internal/inventory/model"
)

var (
	// ErrInvalidValue reports a raw value that does not parse for its kind.
	ErrInvalidValue = errors.New("invalid parameter value")
	// ErrOutOfRange reports an integer outside the signed 64-bit range.
	ErrOutOfRange = errors.New("integer out of int64 range")
	// ErrUnknownKind reports a value kind with no conversion.
	ErrUnknownKind = errors.New("unknown value kind")
)

const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = time.RFC3339Nano
)

var datetimeInputs = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999Z07:00",
}

// Decode converts a raw value into the value stored in an object document.
// Empty input yields nil, except for string kinds where it stays "".
func Decode(raw string, kind model.Kind, multiple bool) (any, error) {
	if !multiple {
		return decodeScalar(raw, kind)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	items, err := DecodeCollection(raw)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := decodeElement(item, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeScalar(raw string, kind model.Kind) (any, error) {
	switch kind {
	case model.KindStr, model.KindFormula, model.KindUserLink, model.KindEnum:
		return raw, nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		if kind == model.KindUnknown {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		return nil, nil
	}
	switch kind {
	case model.KindInt, model.KindSequence, model.KindObjectLink, model.KindObjectLinkBidirectional, model.KindParameterLink:
		return parseInt(s)
	case model.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrInvalidValue, raw)
		}
		return f, nil
	case model.KindBool:
		return parseBool(s)
	case model.KindDate:
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			if dt, derr := parseDatetime(s); derr == nil {
				return dt.Format(DateLayout), nil
			}
			return nil, fmt.Errorf("%w: %q is not a date", ErrInvalidValue, raw)
		}
		return t.Format(DateLayout), nil
	case model.KindDatetime:
		t, err := parseDatetime(s)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(DatetimeLayout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	// Integral floats such as "12.0" are accepted.
	if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == float64(int64(f)) {
		return int64(f), nil
	}
	return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeInputs {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a datetime", ErrInvalidValue, s)
}

// decodeElement converts one element of an unpickled collection.
func decodeElement(item any, kind model.Kind) (any, error) {
	switch v := item.(type) {
	case nil:
		return nil, nil
	case string:
		return decodeScalar(v, kind)
	case *big.Int:
		if kind == model.KindFloat {
			f, _ := new(big.Float).SetInt(v).Float64()
			return f, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, v.String())
	case int64:
		switch kind {
		case model.KindFloat:
			return float64(v), nil
		case model.KindStr, model.KindFormula, model.KindUserLink, model.KindEnum:
			return strconv.FormatInt(v, 10), nil
		case model.KindBool:
			return v != 0, nil
		}
		return decodeScalar(strconv.FormatInt(v, 10), kind)
	case float64:
		switch kind {
		case model.KindFloat:
			return v, nil
		case model.KindStr, model.KindFormula, model.KindUserLink, model.KindEnum:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return decodeScalar(strconv.FormatFloat(v, 'f', -1, 64), kind)
	case bool:
		switch kind {
		case model.KindBool:
			return v, nil
		case model.KindStr, model.KindFormula, model.KindUserLink, model.KindEnum:
			if v {
				return "True", nil
			}
			return "False", nil
		}
		return nil, fmt.Errorf("%w: boolean element for %s", ErrInvalidValue, kind)
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			d, err := decodeElement(e, kind)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: element of type %T", ErrInvalidValue, item)
	}
}

// Ref is a decoded reference to one or more entity ids.
type Ref struct {
	IDs      []int64
	Multiple bool
}

// Single returns the only id of a scalar reference.
func (r Ref) Single() (int64, bool) {
	if r.Multiple || len(r.IDs) == 0 {
		return 0, false
	}
	return r.IDs[0], true
}

// Empty reports whether the reference names no entity.
func (r Ref) Empty() bool { return len(r.IDs) == 0 }

// ResolveIDs decodes a link value into the referenced entity ids: object ids
// for object links, parameter ids for parameter links.
func ResolveIDs(raw string, kind model.Kind, multiple bool) (Ref, error) {
	if kind.Group() == model.GroupPlain {
		return Ref{}, fmt.Errorf("%w: %s is not a link kind", ErrInvalidValue, kind)
	}
	v, err := Decode(raw, model.KindInt, multiple)
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{Multiple: multiple}
	switch t := v.(type) {
	case nil:
	case int64:
		ref.IDs = []int64{t}
	case []any:
		for _, e := range t {
			id, ok := e.(int64)
			if !ok {
				return Ref{}, fmt.Errorf("%w: link element %v", ErrInvalidValue, e)
			}
			ref.IDs = append(ref.IDs, id)
		}
	default:
		return Ref{}, fmt.Errorf("%w: link value %v", ErrInvalidValue, v)
	}
	return ref, nil
}

// FromProjection reads a reference back from a link projection row, where
// the value is either a bare id or a list of ids.
func FromProjection(v any) (Ref, error) {
	switch t := v.(type) {
	case nil:
		return Ref{}, nil
	case []any:
		ref := Ref{Multiple: true}
		for _, e := range t {
			id, ok := model.AsInt64(e)
			if !ok {
				return Ref{}, fmt.Errorf("%w: projection element %v", ErrInvalidValue, e)
			}
			ref.IDs = append(ref.IDs, id)
		}
		return ref, nil
	case []int64:
		return Ref{IDs: append([]int64(nil), t...), Multiple: true}, nil
	default:
		id, ok := model.AsInt64(v)
		if !ok {
			return Ref{}, fmt.Errorf("%w: projection value %v", ErrInvalidValue, v)
		}
		return Ref{IDs: []int64{id}}, nil
	}
}

// Projection renders a reference as stored in a link projection index.
func (r Ref) Projection() any {
	if !r.Multiple {
		if len(r.IDs) == 0 {
			return nil
		}
		return r.IDs[0]
	}
	out := make([]any, len(r.IDs))
	for i, id := range r.IDs {
		out[i] = id
	}
	return out
}
