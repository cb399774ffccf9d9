package common

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
)

// refPattern matches {NAME} references to environment variables inside
// configuration strings, e.g. api_key = "{ALPHAVANTAGE_API_KEY}".
var refPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LookupFunc resolves a reference name. os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// ReplaceReferences substitutes every {NAME} in input. Unresolved references
// are left in place and returned by name.
func ReplaceReferences(input string, lookup LookupFunc) (string, []string) {
	if input == "" {
		return input, nil
	}
	var missing []string
	out := refPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		missing = append(missing, name)
		return match
	})
	return out, missing
}

// ReplaceInStruct walks the exported string fields of the struct v points to,
// including nested structs and string slices, and substitutes references in
// place. An error lists every name the lookup could not resolve.
func ReplaceInStruct(v interface{}, lookup LookupFunc) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got %T", v)
	}

	missing := make(map[string]bool)
	replaceValue(val.Elem(), lookup, missing)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("unresolved configuration references: %v", names)
}

func replaceValue(val reflect.Value, lookup LookupFunc, missing map[string]bool) {
	switch val.Kind() {
	case reflect.String:
		if !val.CanSet() {
			return
		}
		out, unresolved := ReplaceReferences(val.String(), lookup)
		for _, name := range unresolved {
			missing[name] = true
		}
		val.SetString(out)

	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if val.Type().Field(i).IsExported() {
				replaceValue(val.Field(i), lookup, missing)
			}
		}

	case reflect.Ptr:
		if !val.IsNil() {
			replaceValue(val.Elem(), lookup, missing)
		}

	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.String {
			for i := 0; i < val.Len(); i++ {
				replaceValue(val.Index(i), lookup, missing)
			}
		}
	}
}
