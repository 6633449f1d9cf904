package google

import (
	"fmt"
	"strings"
	"time"

	"smartspend/internal/core"
)

// rowValues lays out a as columns A:H. Amounts are written as fixed
// two-decimal text so USER_ENTERED parses them as numbers.
func rowValues(a core.Analysis, created time.Time) []any {
	return []any{
		created.UTC().Format(time.DateTime),
		a.Ref,
		a.Email,
		core.Fixed2(a.Total),
		core.Fixed2(a.Average),
		core.Fixed2(a.Prediction),
		a.Anomalies,
		a.StrongestCategory,
	}
}

// parseRefs collects the non-empty cells of a single column, skipping the
// header. The result is never nil.
func parseRefs(values [][]interface{}) map[string]struct{} {
	refs := make(map[string]struct{}, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.EqualFold(v, fmt.Sprint(Header[1])) {
			continue
		}
		refs[v] = struct{}{}
	}
	return refs
}
