package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vitwit/checkout/types"
)

// cartFile is the snapshot the storefront hands to the daemon.
type cartFile struct {
	CreatedAt time.Time        `json:"createdAt"`
	Items     []types.LineItem `json:"items"`
}

// loadCart reads the cart snapshot. An empty path is an empty cart.
func loadCart(path string) (cartFile, error) {
	var cart cartFile
	if path == "" {
		return cart, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cart, fmt.Errorf("read cart: %w", err)
	}
	if err := json.Unmarshal(data, &cart); err != nil {
		return cart, fmt.Errorf("parse cart: %w", err)
	}
	return cart, nil
}
