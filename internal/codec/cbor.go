// Package codec owns the CBOR encoding used to normalize event snapshots.
//
// Ownership boundary:
// - deterministic encoder/decoder configuration
// - snapshot normalization into generic Go shapes
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: sorted map keys, smallest
// integer encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode decodes any-typed targets into map[string]any, []any, string,
// int64, float64, bool, []byte and nil.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Normalize round-trips v through CBOR so the result holds only generic
// data shapes with no aliasing to the input.
func Normalize(v any) (any, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Diagnose returns the CBOR diagnostic notation of v, for debug logs.
func Diagnose(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return cbor.Diagnose(data)
}
