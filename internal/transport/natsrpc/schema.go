package natsrpc

import (
	"reflect"

	"github.com/casualjim/tidings/pubsub"
	"github.com/go-openapi/strfmt"
	"github.com/invopop/jsonschema"
)

// Schemas returns the JSON schemas of the documents that travel on the wire,
// keyed by document name.
func Schemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(strfmt.DateTime{}) {
				return &jsonschema.Schema{Type: "string", Format: "date-time"}
			}
			return nil
		},
	}

	replySchema := r.Reflect(&reply{})
	replySchema.Properties.Set("type", &jsonschema.Schema{Type: "string", Const: "reply"})
	replySchema.Required = append(replySchema.Required, "type")

	return map[string]*jsonschema.Schema{
		"topic":   r.Reflect(&pubsub.Topic{}),
		"event":   r.Reflect(&pubsub.Event{}),
		"request": r.Reflect(&request{}),
		"reply":   replySchema,
	}
}
