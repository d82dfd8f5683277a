package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/accessql/internal/access"
	"github.com/atlekbai/accessql/internal/oql"
)

// unary is a connect method taking and returning free-form structs.
type unary = func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// serviceHandler mounts one connect handler per method under
// /<service>/<method>.
func serviceHandler(service string, methods map[string]unary, interceptors []connect.Interceptor) (string, http.Handler) {
	opts := connect.WithInterceptors(interceptors...)
	mux := http.NewServeMux()
	for name, fn := range methods {
		procedure := "/" + service + "/" + name
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts))
	}
	return "/" + service + "/", mux
}

// connectError maps access and parse errors onto connect codes.
func connectError(err error) error {
	var pe *oql.ParseError
	switch {
	case errors.As(err, &pe),
		access.IsRuleConfigurationErr(err),
		errors.Is(err, access.ErrUnsupportedStatement):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case access.IsUnknownEntityErr(err):
		return connect.NewError(connect.CodeNotFound, err)
	case access.IsNotEvaluatableErr(err):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case access.IsSecurityViolationErr(err):
		return connect.NewError(connect.CodePermissionDenied, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringList(m map[string]any, key string) []string {
	list, _ := m[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// securityContext reads the principal, the roles and the extra placeholder
// values under "context" from a request.
func securityContext(m map[string]any) access.StaticContext {
	sc := access.StaticContext{
		Principal: stringField(m, "principal"),
		Roles:     stringList(m, "roles"),
	}
	if values, ok := m["context"].(map[string]any); ok {
		sc.Values = values
	}
	return sc
}

// accessType reads the access field, READ when absent.
func accessType(m map[string]any) (access.AccessType, error) {
	s := stringField(m, "access")
	if s == "" {
		return access.AccessRead, nil
	}
	a, err := access.ParseAccessType(s)
	if err != nil {
		return 0, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return a, nil
}

// jsonValue converts values bound to query parameters into the types
// structpb accepts.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int, int64, map[string]any, []any:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case uuid.UUID:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = jsonValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32:
		return rv.Float()
	}
	return fmt.Sprint(v)
}

func newResponse(m map[string]any) (*connect.Response[structpb.Struct], error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal response: %w", err))
	}
	return connect.NewResponse(st), nil
}
