package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator joins the fields of an AggregationKey.
const KeySeparator = "::"

// ErrMalformedKey reports a key that cannot be split back into its fields.
var ErrMalformedKey = errors.New("malformed aggregation key")

// AggregationKey groups score records by worker, provider and model. Grouping
// is exact on all three fields.
type AggregationKey struct {
	WorkerID int
	Provider string
	Model    string
}

// String joins the key as worker::provider::model.
func (k AggregationKey) String() string {
	return strconv.Itoa(k.WorkerID) + KeySeparator + k.Provider + KeySeparator + k.Model
}

// Validate rejects keys whose joined form would not parse back to the same fields.
func (k AggregationKey) Validate() error {
	if strings.Contains(k.Provider, KeySeparator) || strings.Contains(k.Model, KeySeparator) {
		return fmt.Errorf("%w: %q", ErrMalformedKey, k.String())
	}
	return nil
}

// ParseKey splits a joined key.
func ParseKey(s string) (AggregationKey, error) {
	parts := strings.Split(s, KeySeparator)
	if len(parts) != 3 {
		return AggregationKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return AggregationKey{}, fmt.Errorf("%w: worker id %q", ErrMalformedKey, parts[0])
	}
	return AggregationKey{WorkerID: id, Provider: parts[1], Model: parts[2]}, nil
}
