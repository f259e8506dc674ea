// Package wire defines the broker frame protocol shared by the ipc client
// and host: JSON request/response frames carried over WebSocket messages,
// encoded with sonic. Payloads stay opaque raw JSON so the broker never needs
// to understand caller types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/conduitworks/conduit"
)

// Operations understood by the broker.
const (
	OpOpenChannel  = "open_channel"
	OpPut          = "put"
	OpGet          = "get"
	OpTryPut       = "try_put"
	OpTryGet       = "try_get"
	OpCloseChannel = "close_channel"

	OpMapGet    = "map_get"
	OpMapSet    = "map_set"
	OpMapDelete = "map_delete"
	OpMapKeys   = "map_keys"
	OpMapLen    = "map_len"

	OpListAppend   = "list_append"
	OpListGet      = "list_get"
	OpListSet      = "list_set"
	OpListLen      = "list_len"
	OpListSnapshot = "list_snapshot"

	OpLockAcquire    = "lock_acquire"
	OpLockTryAcquire = "lock_try_acquire"
	OpLockRelease    = "lock_release"
)

// Error codes carried in responses, mirroring the library taxonomy.
const (
	CodeWouldBlock    = "would_block"
	CodeTimedOut      = "timed_out"
	CodeClosed        = "closed"
	CodeNotOwner      = "not_owner"
	CodeSerialization = "serialization"
	CodeBadRequest    = "bad_request"
	CodeInternal      = "internal"
)

// Request is one client operation. Resource names a channel, map, list, or
// lock on the broker; resources are created on first use. TimeoutMS bounds
// blocking operations: negative blocks indefinitely, zero means non-blocking.
type Request struct {
	ID        uint64          `json:"id"`
	Op        string          `json:"op"`
	Resource  string          `json:"resource"`
	Key       string          `json:"key,omitempty"`
	Index     int             `json:"index,omitempty"`
	Capacity  int             `json:"capacity,omitempty"`
	TimeoutMS int64           `json:"timeout_ms,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response answers the request with the matching ID.
type Response struct {
	ID      uint64            `json:"id"`
	OK      bool              `json:"ok"`
	Code    string            `json:"code,omitempty"`
	Error   string            `json:"error,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Keys    []string          `json:"keys,omitempty"`
	Items   []json.RawMessage `json:"items,omitempty"`
	Length  int               `json:"length,omitempty"`
	Found   bool              `json:"found,omitempty"`
}

// Encode marshals v, mapping failures to conduit.ErrSerialization.
func Encode(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", conduit.ErrSerialization, err)
	}
	return data, nil
}

// Decode unmarshals data into v, mapping failures to conduit.ErrSerialization.
func Decode(data []byte, v any) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", conduit.ErrSerialization, err)
	}
	return nil
}

// ToError converts a failed response into the library taxonomy.
func ToError(resp *Response) error {
	if resp.OK {
		return nil
	}
	switch resp.Code {
	case CodeWouldBlock:
		return conduit.ErrWouldBlock
	case CodeTimedOut:
		return conduit.ErrTimedOut
	case CodeClosed:
		return conduit.ErrClosed
	case CodeNotOwner:
		return conduit.ErrNotOwner
	case CodeSerialization:
		return fmt.Errorf("%w: %s", conduit.ErrSerialization, resp.Error)
	default:
		return fmt.Errorf("broker: %s", resp.Error)
	}
}

// FromError converts an error into a response code plus message.
func FromError(err error) (code, msg string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, conduit.ErrWouldBlock):
		return CodeWouldBlock, err.Error()
	case errors.Is(err, conduit.ErrTimedOut):
		return CodeTimedOut, err.Error()
	case errors.Is(err, conduit.ErrClosed):
		return CodeClosed, err.Error()
	case errors.Is(err, conduit.ErrNotOwner):
		return CodeNotOwner, err.Error()
	case errors.Is(err, conduit.ErrSerialization):
		return CodeSerialization, err.Error()
	default:
		return CodeInternal, err.Error()
	}
}

