// Package publisher holds what the Pub/Sub and in-memory publishers share.
package publisher

import (
	"encoding/json"
	"fmt"
)

// Attributer is implemented by payloads that carry routing attributes.
type Attributer interface {
	Attributes() map[string]string
}

// Encode marshals payload to JSON and collects its attributes.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{"content_type": "application/json"}
	if a, ok := payload.(Attributer); ok {
		for k, v := range a.Attributes() {
			attrs[k] = v
		}
	}
	return data, attrs, nil
}
