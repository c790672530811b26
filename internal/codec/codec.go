// Package codec is the dotted-path JSON encode/decode registry backing the
// json_dumps/json_loads config options: the same factory-by-name shape as
// internal/factory, sized down to two function kinds instead of four
// handler interfaces. Built-in entries cover the standard library and
// json-iterator/go; a deployment's config simply names one.
package codec

import (
	"encoding/json"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// EncodeFunc marshals a value to JSON bytes.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc unmarshals JSON bytes into v.
type DecodeFunc func(data []byte, v any) error

var (
	mu       sync.RWMutex
	encoders = map[string]EncodeFunc{}
	decoders = map[string]DecodeFunc{}
)

func init() {
	RegisterEncoder("brimd.codec.std.dumps", json.Marshal)
	RegisterDecoder("brimd.codec.std.loads", json.Unmarshal)

	compat := jsoniter.ConfigCompatibleWithStandardLibrary
	RegisterEncoder("brimd.codec.jsoniter.dumps", compat.Marshal)
	RegisterDecoder("brimd.codec.jsoniter.loads", compat.Unmarshal)
}

// RegisterEncoder registers an encode function under a dotted name.
func RegisterEncoder(name string, fn EncodeFunc) {
	mu.Lock()
	defer mu.Unlock()
	encoders[name] = fn
}

// RegisterDecoder registers a decode function under a dotted name.
func RegisterDecoder(name string, fn DecodeFunc) {
	mu.Lock()
	defer mu.Unlock()
	decoders[name] = fn
}

// Resolve looks up the configured json_dumps/json_loads pair, returning an
// error if either name is unregistered.
func Resolve(dumpsName, loadsName string) (EncodeFunc, DecodeFunc, error) {
	mu.RLock()
	defer mu.RUnlock()
	enc, ok := encoders[dumpsName]
	if !ok {
		return nil, nil, fmt.Errorf("codec: no encoder registered as %q", dumpsName)
	}
	dec, ok := decoders[loadsName]
	if !ok {
		return nil, nil, fmt.Errorf("codec: no decoder registered as %q", loadsName)
	}
	return enc, dec, nil
}
