package rule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// clean extracts the first match of re from the text form of v: the capture
// group when re defines exactly one, the whole match otherwise. nil means no
// match.
func clean(v interface{}, re *regexp.Regexp) interface{} {
	if items, ok := v.([]interface{}); ok {
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if c := clean(item, re); c != nil {
				out = append(out, c)
			}
		}
		return out
	}

	text, ok := toText(v)
	if !ok {
		return nil
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if re.NumSubexp() == 1 {
		return m[1]
	}
	return m[0]
}

// present reports whether v counts as a successful value: non-nil, and
// non-empty for text and lists.
func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	}
	return true
}

// toText renders v as text. The boolean is false for nil.
func toText(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case fmt.Stringer:
		return t.String(), true
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
	return fmt.Sprint(v), true
}
