package manager

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

var (
	validName   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	invalidRuns = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// defaultName derives a slot name from the symbol name of fn.
func defaultName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}

	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	name = invalidRuns.ReplaceAllString(name, "_")
	return strings.Trim(name, "_.")
}

// validateName checks that name can be used as a directory under the cache root.
func validateName(name string) error {
	if !validName.MatchString(name) || strings.HasPrefix(name, ".") {
		return zerr.With(zerr.Wrap(domain.ErrInvalidSlotName, "slot names may only contain letters, digits, '_', '-' and '.'"), "name", name)
	}
	return nil
}
