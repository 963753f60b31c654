package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

func TestSplitWhere(t *testing.T) {
	eq, term, hasSearch := splitWhere(map[string]any{"status": "open", "$search": "timeout"})
	assert.Equal(t, map[string]any{"status": "open"}, eq)
	assert.True(t, hasSearch)
	assert.Equal(t, "timeout", term)

	eq, _, hasSearch = splitWhere(nil)
	assert.Nil(t, eq)
	assert.False(t, hasSearch)
}

func TestHashResultDedup(t *testing.T) {
	a := hashResult([]map[string]any{{"id": "1", "status": "open"}})
	b := hashResult([]map[string]any{{"id": "1", "status": "open"}})
	c := hashResult([]map[string]any{{"id": "1", "status": "closed"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRecordKey(t *testing.T) {
	schema := &domain.BucketSchema{Name: "orders", PrimaryKey: "orderId"}

	key, err := recordKey(schema, map[string]any{"orderId": "o-1", "amount": 10})
	require.NoError(t, err)
	assert.Equal(t, "o-1", key)

	record := map[string]any{"amount": 10}
	key, err = recordKey(schema, record)
	require.NoError(t, err)
	assert.NotEmpty(t, key, "a missing primary key is generated")
	assert.Equal(t, key, record["orderId"], "the generated key is written back into the record")

	_, err = recordKey(schema, map[string]any{"orderId": ""})
	require.Error(t, err)
}

func TestRecordKeyDefaultsToID(t *testing.T) {
	schema := &domain.BucketSchema{Name: "orders"}
	key, err := recordKey(schema, map[string]any{"id": "o-2"})
	require.NoError(t, err)
	assert.Equal(t, "o-2", key)
}

func TestMergeWhere(t *testing.T) {
	merged := mergeWhere(map[string]any{"status": "open"}, map[string]any{"owner": "u1"})
	assert.Equal(t, map[string]any{"status": "open", "owner": "u1"}, merged)

	assert.Nil(t, mergeWhere(nil, nil))
}

func TestBucketSchemaTextField(t *testing.T) {
	schema := domain.BucketSchema{Fields: []domain.FieldSchema{
		{Name: "title", Type: "text"},
		{Name: "count", Type: "number"},
	}}
	assert.Equal(t, "title", schema.TextField())

	empty := domain.BucketSchema{Fields: []domain.FieldSchema{{Name: "count", Type: "number"}}}
	assert.Equal(t, "", empty.TextField())
}
