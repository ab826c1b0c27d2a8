package provider

import "strings"

// SearchKey is the filter key used for free-text search.
const SearchKey = "q"

// SplitFilterKey splits "due_date@lte" into ("due_date", "lte"). Keys without
// an operator suffix get "eq".
func SplitFilterKey(key string) (field, op string) {
	if i := strings.IndexByte(key, '@'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, "eq"
}

// JoinFilterKey is the inverse of SplitFilterKey.
func JoinFilterKey(field, op string) string {
	if op == "" || op == "eq" {
		return field
	}
	return field + "@" + op
}

// HasField reports whether any key of f targets field, whatever its operator.
func (f Filter) HasField(field string) bool {
	for k := range f {
		if name, _ := SplitFilterKey(k); name == field {
			return true
		}
	}
	return false
}
