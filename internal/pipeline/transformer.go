// Package pipeline contains the relay's message processing stages: decoding
// envelopes off the topic and fanning them out to subscribed devices.
package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// EnvelopeTransformer is a dataflow Transformer that decodes the wire form of
// an envelope. Envelopes without a destination channel cannot be routed and
// are skipped with an error so the streaming service nacks them to the DLQ.
// The data attributes are not validated; that is the receiving satellite's job.
func EnvelopeTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dining.Envelope, bool, error) {
	env, err := dining.DecodeEnvelope(msg.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode envelope from message %s: %w", msg.ID, err)
	}
	if env.Channel == "" {
		return nil, true, fmt.Errorf("message %s: %w: no channel", msg.ID, dining.ErrMalformedEnvelope)
	}
	if env.Action == "" {
		return nil, true, fmt.Errorf("message %s: %w: no action", msg.ID, dining.ErrMalformedEnvelope)
	}
	return env, false, nil
}
