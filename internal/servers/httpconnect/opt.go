package httpconnect

// Opt is the HTTP CONNECT server's configuration: the socket address its
// accept loop binds on, and optional Basic-auth credentials.
type Opt struct {
	Bind     string `json:"bind"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

var schemaJSON = []byte(`{
	"type": "object",
	"properties": {
		"bind": {"type": "string"},
		"username": {"type": "string"},
		"password": {"type": "string"}
	},
	"required": ["bind"]
}`)
