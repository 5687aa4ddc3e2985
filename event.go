package drawrelay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event names understood by the relay.
const (
	// StartDrawing begins a stroke on the receivers. Its payload is forwarded.
	StartDrawing = "startDrawing"

	// StopDrawing ends the current stroke. It never carries a payload.
	StopDrawing = "stopDrawing"

	// ClearCanvas clears the receivers' canvases. It never carries a payload.
	ClearCanvas = "clearCanvas"

	// Draw is the single event of the unified protocol. Clearing is
	// expressed inside its payload by the clients.
	Draw = "draw"
)

// Protocol selects which event names are relayed.
type Protocol string

const (
	// ProtocolLegacy relays startDrawing, stopDrawing and clearCanvas.
	ProtocolLegacy Protocol = "legacy"

	// ProtocolUnified relays draw.
	ProtocolUnified Protocol = "unified"

	// ProtocolBoth relays the events of both protocols.
	ProtocolBoth Protocol = "both"
)

// ParseProtocol converts a configuration string into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case ProtocolLegacy, ProtocolUnified, ProtocolBoth:
		return p, nil
	case "":
		return ProtocolBoth, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

type eventKind struct {
	protocol Protocol
	payload  bool
}

var eventKinds = map[string]eventKind{
	StartDrawing: {ProtocolLegacy, true},
	StopDrawing:  {ProtocolLegacy, false},
	ClearCanvas:  {ProtocolLegacy, false},
	Draw:         {ProtocolUnified, true},
}

// Supports reports whether the named event is relayed under p.
func (p Protocol) Supports(name string) bool {
	kind, ok := eventKinds[name]
	if !ok {
		return false
	}
	return p == ProtocolBoth || p == kind.protocol
}

// carriesPayload reports whether the payload of the named event is forwarded.
func carriesPayload(name string) bool {
	return eventKinds[name].payload
}

// event is one drawing event as it travels through the hub. Data holds the
// exact bytes the sender wrote for the "data" member, or nil.
type event struct {
	Name string
	Data json.RawMessage
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var errMissingEvent = errors.New("missing event name")

func decodeEvent(frame []byte) (event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return event{}, err
	}
	if env.Event == "" {
		return event{}, errMissingEvent
	}

	return event{Name: env.Event, Data: env.Data}, nil
}

// encodeEvent writes the envelope by hand so that the payload bytes go out
// exactly as they came in. json.Marshal would compact a RawMessage.
func encodeEvent(e event) []byte {
	name, _ := json.Marshal(e.Name)

	var b bytes.Buffer
	b.Grow(len(name) + len(e.Data) + 20)
	b.WriteString(`{"event":`)
	b.Write(name)
	if len(e.Data) > 0 {
		b.WriteString(`,"data":`)
		b.Write(e.Data)
	}
	b.WriteByte('}')
	return b.Bytes()
}
