package docstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreMissing(t *testing.T) {
	assert.NoError(t, IgnoreMissing(nil))

	plain := errors.New("network")
	assert.Equal(t, plain, IgnoreMissing(plain))

	onlyMissing := &BulkError{Items: []BulkItemError{{Op: OpUpdate, ID: "1", Reason: ReasonDocumentMissing}}}
	assert.NoError(t, IgnoreMissing(fmt.Errorf("wrapped: %w", onlyMissing)))

	mixed := &BulkError{Items: []BulkItemError{
		{Op: OpUpdate, ID: "1", Reason: ReasonDocumentMissing},
		{Op: OpIndex, ID: "2", Reason: "mapper_parsing_exception"},
	}}
	err := IgnoreMissing(mixed)
	be, ok := AsBulkError(err)
	require.True(t, ok)
	require.Len(t, be.Items, 1)
	assert.Equal(t, "2", be.Items[0].ID)
}

func TestBulkError_Message(t *testing.T) {
	err := &BulkError{Items: []BulkItemError{{Op: OpIndex, Index: "obj_1", ID: "7", Reason: "boom"}}}
	assert.Equal(t, "bulk: 1 actions rejected (first: index obj_1/7: boom)", err.Error())
	assert.Equal(t, "bulk: no rejected items", (&BulkError{}).Error())
}
