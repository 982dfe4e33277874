package derive

import (
	"math"
	"strconv"
	"strings"

	"github.com/kingrea/stagegate/internal/contracts"
)

// entries returns the object elements of a list field. Non-object elements are
// skipped.
func entries(doc map[string]any, key string) []map[string]any {
	list, ok := contracts.AsList(doc[key])
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := contracts.AsObject(item); ok {
			out = append(out, obj)
		}
	}
	return out
}

func object(doc map[string]any, key string) (map[string]any, bool) {
	return contracts.AsObject(doc[key])
}

func number(doc map[string]any, key string) (float64, bool) {
	if doc == nil {
		return 0, false
	}
	return contracts.AsNumber(doc[key])
}

func text(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

func has(doc map[string]any, key string) bool {
	value, ok := doc[key]
	return ok && value != nil
}

func roundTo(n float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(n*scale) / scale
}

func percentOf(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Min(100, math.Max(0, part/whole*100))
}

// count returns the length of a list field, counting elements of any kind.
func count(doc map[string]any, key string) int {
	list, _ := contracts.AsList(doc[key])
	return len(list)
}

// extend copies obj and sets one extra field on the copy.
func extend(obj map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out[key] = value
	return out
}

// output returns the published output of an upstream stage, or nil.
func output(upstream contracts.UpstreamSet, stage int) map[string]any {
	doc, _ := upstream.Lookup(stage)
	return doc
}

func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// formatNumber renders a figure for a gate message without trailing zeros.
func formatNumber(n float64) string {
	return strconv.FormatFloat(roundTo(n, 2), 'f', -1, 64)
}
