package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	body := `{"createdAt":"2023-11-14T22:13:20Z","items":[{"id":"p1","name":"Tee","price":"22.50","quantity":2,"size":"M"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cart, err := loadCart(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), cart.CreatedAt.UnixMilli())
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "45", cart.Items[0].LineTotal().String())
	assert.Equal(t, "M", cart.Items[0].Size)
}

func TestLoadCartEmptyPath(t *testing.T) {
	cart, err := loadCart("")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
