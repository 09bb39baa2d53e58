// Package message defines the JSON-RPC 2.0 envelope exchanged between peers.
//
// Envelope is the single wire unit for every request, notification and response.
// It gets serialized by the codec layer and wrapped in a protocol frame for
// transmission. Which of the three shapes an envelope has is decided by Classify,
// solely from the presence of the method and id members:
//
//	method  id    kind
//	  ✓     ✓     Request       (expects exactly one response)
//	  ✓     ✗     Notification  (fire-and-forget)
//	  ✗     ✓     Response      (correlated back to a pending request)
//	  ✗     ✗     Unrecognized  (silently ignorable)
package message

import (
	"encoding/json"
)

// Version is stamped on every envelope built by this package.
const Version = "2.0"

// Kind is the classification of an envelope.
type Kind uint8

const (
	KindUnrecognized Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unrecognized"
	}
}

// Envelope carries a single JSON-RPC message.
//
//   - Request:      ID and Method are set, Params holds the ordered arguments.
//   - Notification: Method is set, ID is nil.
//   - Response:     ID is set, exactly one of Result or Error is meaningful.
type Envelope struct {
	Version string // Always "2.0" for envelopes built here
	ID      *ID    // nil means absent
	Method  string // "" means absent
	Params  Params
	Result  any    // json.RawMessage when decoded from the wire
	Error   *Error // Non-nil if the call failed
}

// Classify maps an envelope to exactly one Kind. It is total: a nil envelope
// is KindUnrecognized.
func Classify(env *Envelope) Kind {
	if env == nil {
		return KindUnrecognized
	}
	hasMethod := env.Method != ""
	hasID := env.ID != nil
	switch {
	case hasMethod && hasID:
		return KindRequest
	case hasMethod:
		return KindNotification
	case hasID:
		return KindResponse
	default:
		return KindUnrecognized
	}
}

// NewNotification builds a notification envelope. No identifier is assigned.
func NewNotification(method string, params Params) *Envelope {
	return &Envelope{Version: Version, Method: method, Params: params}
}

// NewRequest builds a request envelope for an identifier the caller already owns.
func NewRequest(id ID, method string, params Params) *Envelope {
	return &Envelope{Version: Version, ID: &id, Method: method, Params: params}
}

// NewResult builds a successful response.
func NewResult(id ID, result any) *Envelope {
	return &Envelope{Version: Version, ID: &id, Result: result}
}

// NewErrorResponse builds a failed response. The error object is copied, so
// catalog values such as ErrMethodNotFound are never shared with the envelope.
func NewErrorResponse(id ID, e Error) *Envelope {
	return &Envelope{Version: Version, ID: &id, Error: &e}
}

// wireEnvelope is the JSON shape of an Envelope.
type wireEnvelope struct {
	Version string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  Params          `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// responseEnvelope always writes id and exactly one of result or error, as
// required for response objects ("id": null and "result": null included).
type responseEnvelope struct {
	Version string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Method != "" {
		return json.Marshal(wireEnvelope{
			Version: e.Version,
			ID:      e.ID,
			Method:  e.Method,
			Params:  e.Params,
		})
	}

	resp := responseEnvelope{Version: e.Version, ID: e.ID, Error: e.Error}
	if e.Error == nil {
		result, err := json.Marshal(e.Result)
		if err != nil {
			return nil, err
		}
		resp.Result = result
	}
	return json.Marshal(resp)
}

// UnmarshalJSON implements json.Unmarshaler. Params elements and Result are kept
// as json.RawMessage; use Params.Bind or Convert to decode them.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Envelope{
		Version: w.Version,
		ID:      w.ID,
		Method:  w.Method,
		Params:  w.Params,
		Error:   w.Error,
	}
	if len(w.Result) > 0 {
		e.Result = w.Result
	}
	return nil
}
