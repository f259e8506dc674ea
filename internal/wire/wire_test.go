package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		ID:        42,
		Op:        OpPut,
		Resource:  "jobs",
		TimeoutMS: 1500,
		Payload:   []byte(`{"n":7}`),
	}

	data, err := Encode(&req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, Decode(data, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Op, got.Op)
	assert.Equal(t, req.Resource, got.Resource)
	assert.Equal(t, req.TimeoutMS, got.TimeoutMS)
	assert.JSONEq(t, `{"n":7}`, string(got.Payload))
}

func TestDecodeMalformed(t *testing.T) {
	var req Request
	err := Decode([]byte(`{"id":`), &req)
	assert.ErrorIs(t, err, conduit.ErrSerialization)
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"would block", conduit.ErrWouldBlock, CodeWouldBlock},
		{"timed out", conduit.ErrTimedOut, CodeTimedOut},
		{"closed", conduit.ErrClosed, CodeClosed},
		{"not owner", conduit.ErrNotOwner, CodeNotOwner},
		{"serialization", conduit.ErrSerialization, CodeSerialization},
		{"internal", assert.AnError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := FromError(tc.err)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, msg)

			got := ToError(&Response{Code: code, Error: msg})
			if tc.code == CodeInternal {
				assert.Error(t, got)
			} else {
				assert.ErrorIs(t, got, tc.err)
			}
		})
	}
}

func TestToErrorOK(t *testing.T) {
	assert.NoError(t, ToError(&Response{OK: true}))
}
