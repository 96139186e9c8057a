package dining

import (
	"encoding/json"
	"fmt"
)

// Attribute keys understood by the satellites.
const (
	AttrObjectID    = "objId"
	AttrTableNumber = "tableNum"
)

// Envelope is a single notification as carried over a transport.
//
// Channel is the channel the envelope was published to; a receiver only
// accepts envelopes addressed to its own bound channel. Data is the raw
// JSON-encoded attribute map and is only parsed on demand, so a malformed
// payload can still be routed and reported.
type Envelope struct {
	Channel Channel `json:"channel"`
	Action  Action  `json:"action"`
	Data    string  `json:"data"`
	Sender  Channel `json:"sender,omitempty"`
}

// NewEnvelope builds an envelope addressed to channel with attrs encoded as data.
func NewEnvelope(channel Channel, action Action, attrs map[string]string, sender Channel) (*Envelope, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope attributes: %w", err)
	}
	return &Envelope{
		Channel: channel,
		Action:  action,
		Data:    string(data),
		Sender:  sender,
	}, nil
}

// DecodeEnvelope parses the wire form of an envelope. Only the outer object is
// validated here; Data is left as-is.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &env, nil
}

// Encode returns the wire form of the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Attributes decodes the data payload.
func (e *Envelope) Attributes() (map[string]string, error) {
	if e.Data == "" {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedEnvelope)
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(e.Data), &attrs); err != nil {
		return nil, fmt.Errorf("%w: data is not a string map: %v", ErrMalformedEnvelope, err)
	}
	return attrs, nil
}

// Attribute returns a single attribute, failing if it is absent or empty.
func (e *Envelope) Attribute(key string) (string, error) {
	attrs, err := e.Attributes()
	if err != nil {
		return "", err
	}
	v, ok := attrs[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedEnvelope, key)
	}
	return v, nil
}

// ObjectID returns the id of the object the receiver should fetch.
func (e *Envelope) ObjectID() (string, error) {
	return e.Attribute(AttrObjectID)
}

// PushData flattens the envelope into the string map used as a device push
// data payload.
func (e *Envelope) PushData() map[string]string {
	data := map[string]string{
		"channel": string(e.Channel),
		"action":  string(e.Action),
		"data":    e.Data,
	}
	if e.Sender != "" {
		data["sender"] = string(e.Sender)
	}
	return data
}
