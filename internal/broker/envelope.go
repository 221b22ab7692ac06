package broker

import (
	"encoding/base64"
	"encoding/json"
	"path"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

// Envelope is the JSON body of a queued document. The payload is either
// inlined as base64 or stored in an object bucket.
type Envelope struct {
	ContentType string         `json:"content_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Payload     string         `json:"payload,omitempty"`
	Bucket      string         `json:"bucket,omitempty"`
	Object      string         `json:"object,omitempty"`
}

// IsReference reports whether the payload lives in object storage.
func (e Envelope) IsReference() bool { return e.Payload == "" && e.Object != "" }

// DecodeEnvelope parses and checks a message body. Malformed bodies are
// reported as common.ErrInvalidInput since redelivery cannot fix them.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, errors.Mark(errors.Wrap(err, "decode envelope"), common.ErrInvalidInput)
	}
	if env.Payload == "" && (env.Bucket == "" || env.Object == "") {
		return env, errors.Wrap(common.ErrInvalidInput, "envelope has neither payload nor bucket/object")
	}
	if env.ContentType == "" && env.Object != "" {
		env.ContentType = constants.ContentTypeForExt(path.Ext(env.Object))
	}
	return env, nil
}

// InlinePayload decodes the base64 payload.
func (e Envelope) InlinePayload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode base64 payload"), common.ErrInvalidInput)
	}
	return b, nil
}
