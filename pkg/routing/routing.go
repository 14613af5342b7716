// Package routing evaluates route definitions against request facts. The
// matcher is pure: it reads the compiled table and the request, and returns
// a route or a typed error. Category selection is by explicit request
// tagging, never inferred from payload contents.
package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"routecodex-hq/routecodex/pkg/config"
)

// Request is the fact set a route pattern is evaluated against.
type Request struct {
	Model    string
	Provider string
	Category string
	Fields   map[string]any
}

// NoRouteError means no pattern matched and no default route is declared.
type NoRouteError struct {
	Model string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no_route: no route matches model %q and no default route is declared", e.Model)
}

// ConditionFailedError means a route's pattern matched but its condition
// predicate evaluated false. The request fails fast; there is no silent
// fallback to lower-priority routes.
type ConditionFailedError struct {
	RouteID   string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition_failed: route %q condition %s not met", e.RouteID, e.Condition)
}

type compiledRoute struct {
	route    *config.RouteConfig
	model    *regexp.Regexp
	declared int
}

// Table is the compiled, priority-ordered route set.
type Table struct {
	routes       []compiledRoute
	defaultRoute *config.RouteConfig
}

// NewTable compiles the route patterns and orders them by priority, higher
// first, with declaration order as the stable tie-break. Patterns were
// already validated at config load; a compile failure here is still
// surfaced rather than skipped.
func NewTable(routes []config.RouteConfig) (*Table, error) {
	t := &Table{}
	for i := range routes {
		r := &routes[i]
		if r.Default {
			t.defaultRoute = r
		}
		var re *regexp.Regexp
		if r.Pattern.Model != "" {
			var err error
			re, err = regexp.Compile(r.Pattern.Model)
			if err != nil {
				return nil, fmt.Errorf("route %q: model pattern: %w", r.ID, err)
			}
		}
		t.routes = append(t.routes, compiledRoute{route: r, model: re, declared: i})
	}

	sort.SliceStable(t.routes, func(a, b int) bool {
		if t.routes[a].route.Priority != t.routes[b].route.Priority {
			return t.routes[a].route.Priority > t.routes[b].route.Priority
		}
		return t.routes[a].declared < t.routes[b].declared
	})
	return t, nil
}

// Match returns the first route whose pattern accepts the request. A
// matching route whose condition fails aborts the request with
// ConditionFailedError. When nothing matches, the explicit default route is
// used if one exists, otherwise NoRouteError.
func (t *Table) Match(req *Request) (*config.RouteConfig, error) {
	for _, cr := range t.routes {
		if !patternAccepts(cr, req) {
			continue
		}
		if cond := cr.route.Pattern.Condition; cond != nil {
			ok, desc := evalCondition(cond, req)
			if !ok {
				return nil, &ConditionFailedError{RouteID: cr.route.ID, Condition: desc}
			}
		}
		return cr.route, nil
	}
	if t.defaultRoute != nil {
		return t.defaultRoute, nil
	}
	return nil, &NoRouteError{Model: req.Model}
}

func patternAccepts(cr compiledRoute, req *Request) bool {
	if cr.route.Default && cr.model == nil && cr.route.Pattern.Provider == "" {
		// A bare default route only matches through the fallback path.
		return false
	}
	if cr.model != nil && !cr.model.MatchString(req.Model) {
		return false
	}
	if p := cr.route.Pattern.Provider; p != "" && p != req.Provider {
		return false
	}
	return true
}

// evalCondition applies one of the three predicate forms and returns the
// verdict plus a printable description for the error path.
func evalCondition(cond *config.ConditionConfig, req *Request) (bool, string) {
	val, present := lookupField(req, cond.Field)

	switch {
	case cond.Equals != nil:
		desc := fmt.Sprintf("%s == %q", cond.Field, *cond.Equals)
		return present && stringValue(val) == *cond.Equals, desc
	case cond.Present != nil:
		desc := fmt.Sprintf("%s present == %v", cond.Field, *cond.Present)
		return present == *cond.Present, desc
	case cond.Range != nil:
		desc := fmt.Sprintf("%s in [%v, %v]", cond.Field, cond.Range.Min, cond.Range.Max)
		if !present {
			return false, desc
		}
		n, ok := numericValue(val)
		return ok && n >= cond.Range.Min && n <= cond.Range.Max, desc
	default:
		return true, cond.Field
	}
}

func lookupField(req *Request, field string) (any, bool) {
	switch field {
	case "category":
		return req.Category, req.Category != ""
	case "model":
		return req.Model, req.Model != ""
	case "provider":
		return req.Provider, req.Provider != ""
	}
	v, ok := req.Fields[field]
	return v, ok
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
