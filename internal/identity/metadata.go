package identity

import (
	"fmt"
	"strings"
)

// flattenMetadata keeps the scalar entries of an app_metadata object. Nested
// values are dropped; the gate only reads flat flags such as "role".
func flattenMetadata(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool, float64, int, int64:
			out[k] = fmt.Sprint(val)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
