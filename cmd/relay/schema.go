package main

// configDocumentSchema is the JSON Schema for the top-level configuration
// document (§6 "Configuration document"), emitted verbatim by `relay
// schema`. Per-type opt schemas live with their registry entries
// (registry.RegisterNet/RegisterServer's schemaJSON argument) and are
// validated at build time, not re-derived here.
var configDocumentSchema = map[string]interface{}{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title":   "relay configuration document",
	"type":    "object",
	"properties": map[string]interface{}{
		"id": map[string]interface{}{"type": "string"},
		"net": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []string{"type"},
				"properties": map[string]interface{}{
					"type": map[string]interface{}{"type": "string"},
				},
			},
		},
		"server": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []string{"type"},
				"properties": map[string]interface{}{
					"type":   map[string]interface{}{"type": "string"},
					"listen": map[string]interface{}{"type": "string"},
					"net":    map[string]interface{}{"type": "string"},
					"bind":   map[string]interface{}{"type": "string"},
				},
			},
		},
		"import": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"type", "source"},
				"properties": map[string]interface{}{
					"name": map[string]interface{}{"type": "string"},
					"type": map[string]interface{}{"type": "string"},
					"source": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"path": map[string]interface{}{"type": "string"},
							"poll": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"url":      map[string]interface{}{"type": "string"},
									"interval": map[string]interface{}{"type": "string"},
								},
								"required": []string{"url"},
							},
							"storage": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"folder": map[string]interface{}{"type": "string"},
									"key":    map[string]interface{}{"type": "string"},
								},
								"required": []string{"folder", "key"},
							},
							"text": map[string]interface{}{"type": "string"},
						},
					},
				},
			},
		},
	},
	"required": []string{"net", "server"},
}
