package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// Seed is the YAML document listing subscriptions to register at startup.
//
//	subscriptions:
//	  - name: order fulfilment
//	    url: https://fulfilment.internal/hooks
//	    events: [checkout.completed, payment.success]
//	    active: true
type Seed struct {
	Subscriptions []domain.CreateSubscriptionRequest `yaml:"subscriptions"`
}

// LoadSeed reads a seed file. A missing path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document, rejecting unknown keys.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &seed, nil
}
