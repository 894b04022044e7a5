// Package validator checks the shape of controller event envelopes received from the broker.
package validator

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tanmay-xvx/controller-relay/internals/models"
)

// Reason classifies why an envelope was rejected.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInvalidJSON  Reason = "invalid_json"
	ReasonMissingEvent Reason = "missing_event"
	ReasonMissingData  Reason = "missing_data"
	ReasonMissingField Reason = "missing_field"
	ReasonWrongType    Reason = "wrong_type"
	ReasonDuplicateKey Reason = "duplicate_key"
)

// Result is the outcome of a shape check. Field names the offending field when
// the reason refers to one.
type Result struct {
	Valid  bool
	Reason Reason
	Field  string
}

// Error formats the failure for logging. It returns an empty string for valid results.
func (r Result) Error() string {
	if r.Valid {
		return ""
	}
	if r.Field == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Field)
}

func ok() Result { return Result{Valid: true} }

func fail(reason Reason, field string) Result {
	return Result{Reason: reason, Field: field}
}

// controllerFields lists the required fields of a controller event and their JSON types.
var controllerFields = []struct {
	name string
	typ  gjson.Type
}{
	{"cid", gjson.Number},
	{"name", gjson.String},
	{"callsign", gjson.String},
	{"frequency", gjson.String},
	{"facility", gjson.Number},
	{"rating", gjson.Number},
	{"server", gjson.String},
	{"visual_range", gjson.Number},
}

// ValidateEnvelope checks that body is an object with a non-empty string "event"
// and a "data" object that passes ValidateController.
func ValidateEnvelope(body []byte) Result {
	_, res := ParseEnvelope(body)
	return res
}

// ParseEnvelope validates body and returns the envelope built from the checked
// values. Repeated keys in the envelope or its data are rejected, since JSON
// decoders disagree on which occurrence wins.
func ParseEnvelope(body []byte) (models.Envelope, Result) {
	if !gjson.ValidBytes(body) {
		return models.Envelope{}, fail(ReasonInvalidJSON, "")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return models.Envelope{}, fail(ReasonWrongType, "")
	}
	if key, dup := duplicateKey(root); dup {
		return models.Envelope{}, fail(ReasonDuplicateKey, key)
	}

	event := root.Get("event")
	if !event.Exists() || event.Type != gjson.String || event.Str == "" {
		return models.Envelope{}, fail(ReasonMissingEvent, "event")
	}

	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return models.Envelope{}, fail(ReasonMissingData, "data")
	}

	if res := ValidateController(data); !res.Valid {
		return models.Envelope{}, res
	}

	return models.Envelope{
		Event: event.Str,
		Data:  json.RawMessage(data.Raw),
	}, ok()
}

// ValidateController checks the required fields of a controller event payload.
func ValidateController(data gjson.Result) Result {
	if !data.IsObject() {
		return fail(ReasonWrongType, "data")
	}
	if key, dup := duplicateKey(data); dup {
		return fail(ReasonDuplicateKey, "data."+key)
	}

	for _, f := range controllerFields {
		v := data.Get(f.name)
		if !v.Exists() {
			return fail(ReasonMissingField, f.name)
		}
		if v.Type != f.typ {
			return fail(ReasonWrongType, f.name)
		}
	}

	return ok()
}

// duplicateKey reports the first key that occurs more than once in obj.
func duplicateKey(obj gjson.Result) (string, bool) {
	seen := make(map[string]struct{})
	var (
		dup   string
		found bool
	)
	obj.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := seen[key.Str]; ok {
			dup, found = key.Str, true
			return false
		}
		seen[key.Str] = struct{}{}
		return true
	})
	return dup, found
}
