package mcpserver

import (
	"encoding/json"
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
	"pagebuilder/internal/tree"
)

func boolPtr(v bool) *bool { return &v }

// decodeArg re-decodes an argument into target. Agents send either a JSON
// object or a JSON-encoded string; both are accepted.
func decodeArg(args map[string]any, key string, target any) error {
	v, ok := args[key]
	if !ok || v == nil {
		return fmt.Errorf("%s is required", key)
	}
	var data []byte
	if s, ok := v.(string); ok {
		data = []byte(s)
	} else {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func getInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// insertIndex resolves an optional index argument against parentID's
// children. Missing or negative means append.
func insertIndex(present []*domain.PageComponent, parentID string, args map[string]any) (int, error) {
	kids, ok := tree.ChildrenOf(present, parentID)
	if !ok {
		return 0, fmt.Errorf("parent %s is not a container on this page", parentID)
	}
	idx := getInt(args, "index", -1)
	if idx < 0 || idx > len(kids) {
		idx = len(kids)
	}
	return idx, nil
}

// pageStatus is what every mutating tool answers with.
type pageStatus struct {
	PageID   string `json:"pageId"`
	Revision string `json:"revision"`
	CanUndo  bool   `json:"canUndo"`
	CanRedo  bool   `json:"canRedo"`
	Nodes    int    `json:"nodes"`
	Created  string `json:"created,omitempty"`
}

func statusOf(sess *service.EditorSession) pageStatus {
	st := sess.State()
	rev, _ := domain.Revision(st.Present)
	return pageStatus{
		PageID:   sess.PageID(),
		Revision: rev,
		CanUndo:  st.CanUndo(),
		CanRedo:  st.CanRedo(),
		Nodes:    len(tree.CollectIDs(st.Present)),
	}
}
