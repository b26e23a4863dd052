package openapi

import (
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

type RouteBuilder struct {
	doc       *Document
	method    string
	path      string
	operation *openapi3.Operation
}

func (rb *RouteBuilder) pathParams() {
	for _, part := range strings.Split(rb.path, "/") {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			rb.param(name, openapi3.ParameterInPath, "").Required = true
		}
	}
}

func (rb *RouteBuilder) param(name, in, description string) *openapi3.Parameter {
	for _, p := range rb.operation.Parameters {
		if p.Value.Name == name && p.Value.In == in {
			if description != "" {
				p.Value.Description = description
			}
			return p.Value
		}
	}

	param := &openapi3.Parameter{
		Name:        name,
		In:          in,
		Description: description,
		Schema:      &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
	}
	rb.operation.Parameters = append(rb.operation.Parameters, &openapi3.ParameterRef{Value: param})
	return param
}

func (rb *RouteBuilder) Summary(summary string) *RouteBuilder {
	rb.operation.Summary = summary
	return rb
}

func (rb *RouteBuilder) Description(description string) *RouteBuilder {
	rb.operation.Description = description
	return rb
}

func (rb *RouteBuilder) OperationID(id string) *RouteBuilder {
	rb.operation.OperationID = id
	return rb
}

func (rb *RouteBuilder) Tags(tags ...string) *RouteBuilder {
	rb.operation.Tags = append(rb.operation.Tags, tags...)
	return rb
}

func (rb *RouteBuilder) PathParam(name, description string) *RouteBuilder {
	rb.param(name, openapi3.ParameterInPath, description).Required = true
	return rb
}

func (rb *RouteBuilder) QueryParam(name, description string, required bool) *RouteBuilder {
	rb.param(name, openapi3.ParameterInQuery, description).Required = required
	return rb
}

func (rb *RouteBuilder) Body(example any, description string) *RouteBuilder {
	rb.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithJSONSchemaRef(rb.doc.schemaFor(example)),
	}
	return rb
}

func (rb *RouteBuilder) Response(status int, example any, description string) *RouteBuilder {
	resp := openapi3.NewResponse().WithDescription(description)
	if example != nil {
		resp.Content = openapi3.NewContentWithJSONSchemaRef(rb.doc.schemaFor(example))
	}
	rb.operation.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	return rb
}

// Header documents a string response header on an already added response.
func (rb *RouteBuilder) Header(status int, name, description string) *RouteBuilder {
	resp := rb.operation.Responses.Value(strconv.Itoa(status))
	if resp == nil || resp.Value == nil {
		return rb
	}
	if resp.Value.Headers == nil {
		resp.Value.Headers = make(openapi3.Headers)
	}
	resp.Value.Headers[name] = &openapi3.HeaderRef{
		Value: &openapi3.Header{Parameter: openapi3.Parameter{
			Description: description,
			Schema:      &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		}},
	}
	return rb
}

// Security marks the operation as accepting any one of schemes.
func (rb *RouteBuilder) Security(schemes ...string) *RouteBuilder {
	if rb.operation.Security == nil {
		rb.operation.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		rb.operation.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return rb
}

// OptionalSecurity accepts schemes but also anonymous calls.
func (rb *RouteBuilder) OptionalSecurity(schemes ...string) *RouteBuilder {
	rb.Security(schemes...)
	rb.operation.Security.With(openapi3.NewSecurityRequirement())
	return rb
}

func (rb *RouteBuilder) Build() {
	rb.doc.addOperation(rb.method, rb.path, rb.operation)
}
