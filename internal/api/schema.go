// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// Request bodies. The schemas only constrain shape; presence and policy
// checks belong to the auth services so their messages reach the client.

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Name     string `json:"name" jsonschema:"maxLength=100"`
	Email    string `json:"email" jsonschema:"maxLength=254"`
	Password string `json:"password" jsonschema:"maxLength=1024"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"maxLength=254"`
	Password string `json:"password" jsonschema:"maxLength=1024"`
}

// RefreshTokenRequest is the body of POST /api/auth/refresh and /logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" jsonschema:"maxLength=4096"`
}

// ForgotPasswordRequest is the body of POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" jsonschema:"maxLength=254"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password/{token}.
type ResetPasswordRequest struct {
	Password string `json:"password" jsonschema:"maxLength=1024"`
}

// Schema names, also used as file stems by gen-schema.
const (
	SchemaSignup         = "signup"
	SchemaLogin          = "login"
	SchemaRefreshToken   = "refresh-token"
	SchemaForgotPassword = "forgot-password"
	SchemaResetPassword  = "reset-password"
)

var requestTypes = map[string]struct {
	value       any
	title       string
	description string
}{
	SchemaSignup:         {&SignupRequest{}, "Signup request", "Creates an account"},
	SchemaLogin:          {&LoginRequest{}, "Login request", "Exchanges credentials for a token pair"},
	SchemaRefreshToken:   {&RefreshTokenRequest{}, "Refresh token request", "Carries a refresh token for refresh or logout"},
	SchemaForgotPassword: {&ForgotPasswordRequest{}, "Forgot password request", "Starts a password reset"},
	SchemaResetPassword:  {&ResetPasswordRequest{}, "Reset password request", "Sets a new password with a reset secret"},
}

// SchemaNames returns the known schema names, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(requestTypes))
	for name := range requestTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SchemaID returns the $id of the named request schema.
func SchemaID(name string) string {
	return "https://collabdoc.dev/schemas/" + name + ".schema.json"
}

// GenerateSchema renders the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	rt, ok := requestTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown request schema")
	}

	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	schema := r.Reflect(rt.value)
	schema.ID = jsonschema.ID(SchemaID(name))
	schema.Title = rt.title
	schema.Description = rt.description

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jschema.Schema
}

var schemas = &schemaCache{compiled: make(map[string]*jschema.Schema)}

func (c *schemaCache) get(name string) (*jschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sch, ok := c.compiled[name]; ok {
		return sch, nil
	}

	raw, err := GenerateSchema(name)
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	compiler := jschema.NewCompiler()
	location := name + ".json"
	if err := compiler.AddResource(location, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	sch, err := compiler.Compile(location)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	c.compiled[name] = sch
	return sch, nil
}

// Error codes for request bodies rejected before reaching a service.
const (
	CodeMalformedRequest = "REQUEST_MALFORMED"
	CodeInvalidRequest   = "REQUEST_INVALID"
)

// ValidateRequest checks body against the named schema and decodes it into
// dst. An empty body is treated as an empty object.
func ValidateRequest(name string, body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return malformed(err)
	}

	sch, err := schemas.get(name)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(CodeInvalidRequest).
			With("schema", name).
			With("detail", err.Error()).
			Errorf("%s", describeViolation(err))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return malformed(err)
	}
	return nil
}

func malformed(err error) error {
	return oops.Code(CodeMalformedRequest).
		With("detail", err.Error()).
		Errorf("request body is not valid JSON")
}

// describeViolation names the first offending field of a validation error.
func describeViolation(err error) string {
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return "request body has an invalid shape"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if len(ve.InstanceLocation) == 0 {
		return "request body must be a JSON object"
	}
	return fmt.Sprintf("field %q has an invalid value", strings.Join(ve.InstanceLocation, "."))
}
