package hostfunc

// HTTP types

// HTTPRequestDescriptor is the JSON document a guest passes to http_request.
type HTTPRequestDescriptor struct {
	URL    string            `json:"url" validate:"required,url,max=8192" jsonschema:"required,description=Absolute http or https URL"`
	Method string            `json:"method,omitempty" validate:"omitempty,oneof=GET HEAD POST PUT DELETE PATCH OPTIONS" jsonschema:"enum=GET,enum=HEAD,enum=POST,enum=PUT,enum=DELETE,enum=PATCH,enum=OPTIONS,default=GET"`
	Header map[string]string `json:"header,omitempty" jsonschema:"description=Request headers"`
}

// HTTPResponse is what the bridge hands back before the body is copied into
// the arena.
type HTTPResponse struct {
	Status    int    `json:"status"`
	Body      []byte `json:"body"`
	Truncated bool   `json:"truncated,omitempty"`
}
