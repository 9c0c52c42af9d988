package remote

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content subtype of every call: requests travel as
// application/grpc+json.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "inventory.source.v1.SourceService"

const (
	methodObjectClasses      = "ObjectClasses"
	methodParameterTypes     = "ParameterTypes"
	methodParameterTypesByID = "ParameterTypesByID"
	methodStreamParameters   = "StreamParameters"
	methodStreamObjects      = "StreamObjects"
)

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

type request struct {
	TMOID  int64   `json:"tmo_id,omitempty"`
	TPRMID int64   `json:"tprm_id,omitempty"`
	IDs    []int64 `json:"ids,omitempty"`
}

type batch[T any] struct {
	Objects []T `json:"objects"`
}
