package overrides

import (
	"strings"

	"flipit-overrides-api/internal/models"
)

// NoRequiredAttributesMessage is shown when a category resolves to an empty schema
const NoRequiredAttributesMessage = "No required attributes found"

// InputKind is the widget a field renders as
type InputKind string

const (
	InputSelect InputKind = "select"
	InputNumber InputKind = "number"
	InputText   InputKind = "text"
)

// RenderOptions controls which fields are visible
type RenderOptions struct {
	ShowOptional bool
}

// OptionView is one rendered choice of a select field
type OptionView struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Selected    bool   `json:"selected"`
}

// FieldView is one rendered attribute input
type FieldView struct {
	Key        string           `json:"key"`
	Label      string           `json:"label"`
	Required   bool             `json:"required"`
	Type       models.FieldType `json:"type"`
	Input      InputKind        `json:"input"`
	Multiple   bool             `json:"multiple,omitempty"`
	Options    []OptionView     `json:"options,omitempty"`
	Value      any              `json:"value,omitempty"`
	HelperText string           `json:"helperText,omitempty"`
}

// FormView is the rendered attribute form of one platform card
type FormView struct {
	State         State       `json:"state"`
	Message       string      `json:"message,omitempty"`
	Fields        []FieldView `json:"fields"`
	OptionalCount int         `json:"optionalCount"`
	ShowOptional  bool        `json:"showOptional"`
}

// RenderFields maps a schema and the current values to field views.
// Required fields come first; optional ones are listed only when
// opts.ShowOptional is set. Schema order is kept within each group.
func RenderFields(schema models.AttributeFieldSchema, values map[string]any, opts RenderOptions) FormView {
	view := FormView{
		Fields:       make([]FieldView, 0, len(schema)),
		ShowOptional: opts.ShowOptional,
	}

	var optional []FieldView
	for _, def := range schema {
		field := renderField(def, values[def.Key])
		if def.Required {
			view.Fields = append(view.Fields, field)
			continue
		}
		optional = append(optional, field)
	}

	view.OptionalCount = len(optional)
	if opts.ShowOptional {
		view.Fields = append(view.Fields, optional...)
	}
	return view
}

func renderField(def models.AttributeFieldDefinition, value any) FieldView {
	field := FieldView{
		Key:      def.Key,
		Label:    def.Label,
		Required: def.Required,
		Type:     def.Type,
		Value:    value,
	}
	if field.Label == "" {
		field.Label = def.Key
	}

	switch def.Type {
	case models.FieldTypeSelect, models.FieldTypeMultiSelect:
		if len(def.Options) == 0 {
			field.Input = InputText
			return field
		}
		field.Input = InputSelect
		field.Multiple = def.Type == models.FieldTypeMultiSelect
		field.Options, field.HelperText = renderOptions(def.Options, value)
	case models.FieldTypeNumber:
		field.Input = InputNumber
	default:
		field.Input = InputText
	}
	return field
}

func renderOptions(options []models.FieldOption, value any) ([]OptionView, string) {
	selected := selectedValues(value)

	views := make([]OptionView, 0, len(options))
	var helper []string
	for _, opt := range options {
		v := opt.Value.String()
		view := OptionView{
			Value:       v,
			Label:       opt.Label,
			Description: opt.Description,
			Selected:    selected[v],
		}
		if view.Label == "" {
			view.Label = v
		}
		if view.Selected && opt.Description != "" {
			helper = append(helper, opt.Description)
		}
		views = append(views, view)
	}
	return views, strings.Join(helper, "; ")
}

func selectedValues(value any) map[string]bool {
	selected := make(map[string]bool)
	switch v := value.(type) {
	case nil:
	case []any:
		for _, item := range v {
			selected[models.ValueString(item)] = true
		}
	default:
		selected[models.ValueString(v)] = true
	}
	return selected
}
