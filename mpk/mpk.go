// Package mpk wraps ugorji/go/codec's msgpack handle with the handful of
// helpers the storage layer needs: every "msgpack(...)" in spec.md's data
// model (§3) goes through Marshal/Unmarshal here.
package mpk

import "github.com/ugorji/go/codec"

var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}()

// Marshal encodes v as msgpack.
func Marshal(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal decodes msgpack bytes into v (a pointer).
func Unmarshal(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, handle)
	return dec.Decode(v)
}
