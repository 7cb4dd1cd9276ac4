package classify

import (
	"encoding/json"

	payloadschema "horse.fit/atlas/schema"
)

func payloadValidate(raw []byte) (*Payload, error) {
	return payloadschema.ValidateClassificationPayload(json.RawMessage(raw))
}
