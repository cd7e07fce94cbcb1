package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The five tools the dispatcher can invoke. The set is closed: the resolver
// never emits anything outside it and the dispatcher rejects unknown names.
const (
	ToolCreateTask   = "create_task"
	ToolListTasks    = "list_tasks"
	ToolCompleteTask = "complete_task"
	ToolUpdateTask   = "update_task"
	ToolDeleteTask   = "delete_task"
)

type FieldType string

const (
	FieldString     FieldType = "string"
	FieldInt        FieldType = "int"
	FieldBool       FieldType = "bool"
	FieldStringList FieldType = "string_list"
)

type FieldSpec struct {
	Type     FieldType
	Required bool
	// OneOf restricts string fields to a fixed value set when non-empty.
	OneOf []string
}

// Schema declares a tool's argument surface. Static configuration, not
// persisted per-instance.
type Schema struct {
	Name           string
	RequiresTaskID bool
	Fields         map[string]FieldSpec
}

var registry = map[string]Schema{
	ToolCreateTask: {
		Name: ToolCreateTask,
		Fields: map[string]FieldSpec{
			"title":       {Type: FieldString, Required: true},
			"description": {Type: FieldString},
			"priority":    {Type: FieldString, OneOf: []string{"low", "normal", "high"}},
			"tags":        {Type: FieldStringList},
		},
	},
	ToolListTasks: {
		Name: ToolListTasks,
		Fields: map[string]FieldSpec{
			"completed": {Type: FieldBool},
			"search":    {Type: FieldString},
			"limit":     {Type: FieldInt},
		},
	},
	ToolCompleteTask: {
		Name:           ToolCompleteTask,
		RequiresTaskID: true,
		Fields: map[string]FieldSpec{
			"task_id":   {Type: FieldInt, Required: true},
			"completed": {Type: FieldBool},
		},
	},
	ToolUpdateTask: {
		Name:           ToolUpdateTask,
		RequiresTaskID: true,
		Fields: map[string]FieldSpec{
			"task_id":     {Type: FieldInt, Required: true},
			"title":       {Type: FieldString},
			"description": {Type: FieldString},
			"priority":    {Type: FieldString, OneOf: []string{"low", "normal", "high"}},
			"tags":        {Type: FieldStringList},
		},
	},
	ToolDeleteTask: {
		Name:           ToolDeleteTask,
		RequiresTaskID: true,
		Fields: map[string]FieldSpec{
			"task_id": {Type: FieldInt, Required: true},
		},
	},
}

// SchemaFor returns the declared schema for a tool name.
func SchemaFor(name string) (Schema, bool) {
	s, ok := registry[strings.TrimSpace(name)]
	return s, ok
}

// ValidationError names the first offending argument so the reply can tell
// the user exactly what to fix.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Field, e.Reason)
}

// Args holds a tool call's arguments after validation and normalization.
type Args struct {
	Title       string
	Description string
	Priority    string
	Tags        []string
	Search      string
	Limit       int
	TaskID      int64
	HasTaskID   bool
	Completed   *bool
}

// ValidateArgs checks raw arguments against the tool's schema and returns
// the normalized form. Unknown fields are rejected so a misbehaving
// classifier cannot smuggle arguments past the schema.
func ValidateArgs(name string, raw map[string]any) (Args, map[string]any, error) {
	schema, ok := SchemaFor(name)
	if !ok {
		return Args{}, nil, fmt.Errorf("unknown tool %q", name)
	}

	for field := range raw {
		if _, ok := schema.Fields[field]; !ok {
			return Args{}, nil, &ValidationError{Field: field, Reason: "not accepted by this tool"}
		}
	}

	var args Args
	clean := make(map[string]any, len(raw))
	for field, spec := range schema.Fields {
		value, present := raw[field]
		if !present || value == nil {
			if spec.Required {
				return Args{}, nil, &ValidationError{Field: field, Reason: "required"}
			}
			continue
		}

		switch spec.Type {
		case FieldString:
			s, ok := value.(string)
			if !ok {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be text"}
			}
			s = strings.TrimSpace(s)
			if s == "" {
				if spec.Required {
					return Args{}, nil, &ValidationError{Field: field, Reason: "required"}
				}
				continue
			}
			if len(spec.OneOf) > 0 && !contains(spec.OneOf, strings.ToLower(s)) {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be one of " + strings.Join(spec.OneOf, "|")}
			}
			clean[field] = s
			args.setString(field, s)

		case FieldInt:
			n, ok := coerceInt(value)
			if !ok {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be a whole number"}
			}
			if n <= 0 && field == "task_id" {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be positive"}
			}
			clean[field] = n
			args.setInt(field, n)

		case FieldBool:
			b, ok := value.(bool)
			if !ok {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be true or false"}
			}
			clean[field] = b
			args.setBool(field, b)

		case FieldStringList:
			list, ok := coerceStringList(value)
			if !ok {
				return Args{}, nil, &ValidationError{Field: field, Reason: "must be a list of text values"}
			}
			if len(list) == 0 {
				continue
			}
			clean[field] = list
			args.Tags = list
		}
	}

	if name == ToolUpdateTask {
		if len(clean) <= 1 { // only task_id present
			return Args{}, nil, &ValidationError{Field: "fields", Reason: "nothing to update"}
		}
	}

	return args, clean, nil
}

func (a *Args) setString(field, v string) {
	switch field {
	case "title":
		a.Title = v
	case "description":
		a.Description = v
	case "priority":
		a.Priority = strings.ToLower(v)
	case "search":
		a.Search = v
	}
}

func (a *Args) setInt(field string, v int64) {
	switch field {
	case "task_id":
		a.TaskID = v
		a.HasTaskID = true
	case "limit":
		a.Limit = int(v)
	}
}

func (a *Args) setBool(field string, v bool) {
	if field == "completed" {
		b := v
		a.Completed = &b
	}
}

func coerceInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func coerceStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
