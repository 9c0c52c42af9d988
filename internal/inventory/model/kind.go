package model

import (
	"encoding/json"
	"fmt"
)

// Kind is the value kind of a parameter type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStr
	KindInt
	KindFloat
	KindBool
	KindDate
	KindDatetime
	KindUserLink
	KindFormula
	KindEnum
	KindSequence
	KindObjectLink
	KindObjectLinkBidirectional
	KindParameterLink
)

var kindNames = map[Kind]string{
	KindStr:                     "str",
	KindInt:                     "int",
	KindFloat:                   "float",
	KindBool:                    "bool",
	KindDate:                    "date",
	KindDatetime:                "datetime",
	KindUserLink:                "user_link",
	KindFormula:                 "formula",
	KindEnum:                    "enum",
	KindSequence:                "sequence",
	KindObjectLink:              "object_link",
	KindObjectLinkBidirectional: "object_link_bidirectional",
	KindParameterLink:           "parameter_link",
}

// ParseKind maps a wire name to a Kind. Unknown names are an error rather
// than a silent passthrough.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown value kind %q", s)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalJSON encodes the kind by its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a wire name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Group partitions parameter types for the handler and reindex pipelines.
type Group uint8

const (
	GroupPlain Group = iota
	GroupObjectLink
	GroupParameterLink
)

func (g Group) String() string {
	switch g {
	case GroupObjectLink:
		return "object_link"
	case GroupParameterLink:
		return "parameter_link"
	default:
		return "plain"
	}
}

// Group returns the pipeline group of the kind.
func (k Kind) Group() Group {
	switch k {
	case KindObjectLink, KindObjectLinkBidirectional:
		return GroupObjectLink
	case KindParameterLink:
		return GroupParameterLink
	default:
		return GroupPlain
	}
}
