package drawrelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	for in, want := range map[string]Protocol{
		"":        ProtocolBoth,
		"both":    ProtocolBoth,
		"legacy":  ProtocolLegacy,
		"unified": ProtocolUnified,
	} {
		got, err := ParseProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseProtocol("socket.io")
	assert.Error(t, err)
}

func TestProtocolSupports(t *testing.T) {
	tests := []struct {
		protocol Protocol
		name     string
		want     bool
	}{
		{ProtocolLegacy, StartDrawing, true},
		{ProtocolLegacy, StopDrawing, true},
		{ProtocolLegacy, ClearCanvas, true},
		{ProtocolLegacy, Draw, false},
		{ProtocolUnified, Draw, true},
		{ProtocolUnified, StartDrawing, false},
		{ProtocolBoth, Draw, true},
		{ProtocolBoth, ClearCanvas, true},
		{ProtocolBoth, "connect", false},
		{ProtocolBoth, "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.protocol.Supports(tt.name), "%s supports %q", tt.protocol, tt.name)
	}
}

func TestDecodeEvent(t *testing.T) {
	e, err := decodeEvent([]byte(`{"event":"draw","data": {"x": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, Draw, e.Name)
	assert.Equal(t, `{"x": 1}`, string(e.Data))

	e, err = decodeEvent([]byte(`{"event":"stopDrawing"}`))
	require.NoError(t, err)
	assert.Nil(t, e.Data)

	// an explicit null is a payload like any other
	e, err = decodeEvent([]byte(`{"event":"draw","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, "null", string(e.Data))
	assert.Equal(t, `{"event":"draw","data":null}`, string(encodeEvent(e)))

	_, err = decodeEvent([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, errMissingEvent)

	_, err = decodeEvent([]byte(`["draw"]`))
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	assert.Equal(t, `{"event":"stopDrawing"}`, string(encodeEvent(event{Name: StopDrawing})))
	assert.Equal(t, `{"event":"draw","data":[1, 2]}`,
		string(encodeEvent(event{Name: Draw, Data: []byte(`[1, 2]`)})))
	assert.Equal(t, `{"event":"startDrawing","data":"a\"b"}`,
		string(encodeEvent(event{Name: StartDrawing, Data: []byte(`"a\"b"`)})))
}
