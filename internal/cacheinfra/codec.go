package cacheinfra

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the wire format stored in the remote tier. The value is encoded
// separately from the envelope so the tiered layer can check expiry without
// knowing the value's concrete type, and so readers in other processes can
// defer decoding until they know what type they expect.
type envelope struct {
	Value     []byte `msgpack:"v"`
	CreatedAt int64  `msgpack:"c"`
	ExpiresAt int64  `msgpack:"e"`
}

// DecodeError reports a remote payload that could not be decoded. The tiered
// cache treats these as misses and drops the offending key.
type DecodeError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("cache payload for %q undecodable: %v", e.Key, e.Err)
}

// Unwrap returns the underlying decode failure.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// encodeEnvelope serializes value and its lifetime into the remote wire
// format. Values that are already Raw are stored as-is to avoid re-encoding
// payloads promoted from the remote tier.
func encodeEnvelope(value any, createdAt, expiresAt time.Time) ([]byte, error) {
	var inner []byte
	if raw, ok := value.(Raw); ok {
		inner = raw
	} else {
		var err error
		inner, err = msgpack.Marshal(value)
		if err != nil {
			return nil, err
		}
	}

	return msgpack.Marshal(envelope{
		Value:     inner,
		CreatedAt: createdAt.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
}

func decodeEnvelope(key string, payload []byte) (Raw, time.Time, time.Time, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, time.Time{}, time.Time{}, &DecodeError{Key: key, Err: err}
	}
	return Raw(env.Value), time.UnixMilli(env.CreatedAt), time.UnixMilli(env.ExpiresAt), nil
}
