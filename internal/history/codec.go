package history

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pagebuilder/internal/domain"
)

// MarshalAction encodes an action with its "type" tag.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	m["type"] = json.RawMessage(strconv.Quote(string(a.Kind())))
	return json.Marshal(m)
}

// UnmarshalAction decodes a tagged action.
func UnmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type      Kind                  `json:"type"`
		Component *domain.PageComponent `json:"component"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	decode := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return nil
	}

	switch head.Type {
	case KindAdd:
		var a Add
		if err := decode(&a); err != nil {
			return nil, err
		}
		if head.Component != nil {
			a.Components = append([]*domain.PageComponent{head.Component}, a.Components...)
		}
		return a, nil
	case KindRemove:
		var a Remove
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindMove:
		var a Move
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindUpdate:
		var a Update
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindResize:
		var a Resize
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindDuplicate:
		var a Duplicate
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindUpdateEditor:
		var a UpdateEditor
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindSet:
		var a Set
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindSetGridCols:
		var a SetGridCols
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindSetBreakpoints:
		var a SetBreakpoints
		if err := decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindUndo:
		return Undo{}, nil
	case KindRedo:
		return Redo{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidAction)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, head.Type)
	}
}

func (a Resize) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Fields)+1)
	for k, v := range a.Fields {
		m[k] = v
	}
	m["id"] = a.ID
	return json.Marshal(m)
}

func (a *Resize) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	a.ID, _ = m["id"].(string)
	a.Fields = map[string]any{}
	for k, v := range m {
		if k == "id" || k == "type" {
			continue
		}
		a.Fields[k] = v
	}
	return nil
}
