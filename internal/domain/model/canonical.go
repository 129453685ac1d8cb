package model

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON serializes v under "stable-ordered JSON equality": object
// keys sorted lexicographically, array order preserved. It round-trips v
// through a generic interface{} representation, since encoding/json always
// emits the keys of a map[string]interface{} in sorted order on Marshal --
// no custom key-sorting logic is needed.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// CanonicalEqual reports whether a and b serialize identically under
// CanonicalJSON. Used to gate ResourceChangeEvent emission: a persisted
// Issue only produces a change event when its canonical form actually
// differs from what was stored before.
func CanonicalEqual(a, b any) (bool, error) {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
