package importer

import "encoding/json"

// marshalOpt converts a YAML-decoded generic map into the JSON RawMessage
// descriptors carry, since every net/server Opt is schema-validated and
// type-decoded as JSON downstream (registry, C5).
func marshalOpt(raw map[string]interface{}) ([]byte, error) {
	if raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(raw)
}
