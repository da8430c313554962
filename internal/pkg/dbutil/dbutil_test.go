package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	q, args := Finalize("SELECT dimension FROM index_namespaces WHERE name=?", []interface{}{"kb"})
	require.Equal(t, "SELECT dimension FROM index_namespaces WHERE name=$1", q)
	require.Equal(t, []interface{}{"kb"}, args)

	q, args = Finalize("SELECT id FROM index_records WHERE namespace=? LIMIT ?,?", []interface{}{"kb", 10, 5})
	require.Equal(t, "SELECT id FROM index_records WHERE namespace=$1 LIMIT $2 OFFSET $3", q)
	require.Equal(t, []interface{}{"kb", 5, 10}, args)
}
