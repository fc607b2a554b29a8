package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// FlexString accepts either a JSON string or a JSON number.
// Category ids and option values are numeric on some platforms and strings on others.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// FieldType is the input type the backend declares for an attribute
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeNumber      FieldType = "number"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multi_select"
)

// FieldOption is one selectable value of a select attribute
type FieldOption struct {
	Value       FlexString `json:"value"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
}

// AttributeFieldDefinition describes one attribute a platform category accepts
type AttributeFieldDefinition struct {
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Required bool          `json:"required"`
	Type     FieldType     `json:"type"`
	Options  []FieldOption `json:"options,omitempty"`
}

// AttributeFieldSchema is the ordered field list for a platform+category
type AttributeFieldSchema []AttributeFieldDefinition

// AttributesResponse is the backend payload of the attribute metadata endpoints
type AttributesResponse struct {
	Platform       string                     `json:"platform"`
	CategoryID     FlexString                 `json:"category_id"`
	RequiredFields []AttributeFieldDefinition `json:"required_fields"`
	OptionalFields []AttributeFieldDefinition `json:"optional_fields,omitempty"`
	Error          string                     `json:"error,omitempty"`
}

// Schema flattens the response into one ordered schema. Missing
// required_fields is an empty schema, never an error.
func (r AttributesResponse) Schema() AttributeFieldSchema {
	schema := make(AttributeFieldSchema, 0, len(r.RequiredFields)+len(r.OptionalFields))
	schema = append(schema, r.RequiredFields...)
	for _, field := range r.OptionalFields {
		field.Required = false
		schema = append(schema, field)
	}
	return schema
}

// Listing is the subset of a backend item the override workflow needs
type Listing struct {
	UUID                     string                    `json:"uuid"`
	Title                    string                    `json:"title,omitempty"`
	CategoryID               FlexString                `json:"category_id,omitempty"`
	PlatformListingOverrides map[string]map[string]any `json:"platform_listing_overrides"`
}

// UpdateListingRequest is the PATCH body sent to /items/{uuid}/
type UpdateListingRequest struct {
	PlatformListingOverrides map[string]map[string]any `json:"platform_listing_overrides"`
}

// NormalizeAttributeValue checks that v is a scalar (string or number) or a
// list of scalars and returns it in a canonical form.
func NormalizeAttributeValue(v any) (any, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case json.Number:
		return value, nil
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case []string:
		out := make([]any, len(value))
		for i, s := range value {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(value))
		for _, item := range value {
			switch item.(type) {
			case []any, []string, map[string]any, nil, bool:
				return nil, fmt.Errorf("unsupported list item type %T", item)
			}
			n, err := NormalizeAttributeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// ValueString renders a scalar attribute value for comparison with option values
func ValueString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
