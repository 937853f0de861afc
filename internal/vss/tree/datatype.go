package tree

import (
	"fmt"
	"strconv"
	"strings"

	vsserrors "vssbroker/internal/shared/errors"
	"vssbroker/internal/shared/utils"
)

var integerNativeBounds = map[string][2]int64{
	"int8":   {-128, 127},
	"int16":  {-32768, 32767},
	"int32":  {-2147483648, 2147483647},
	"int64":  {-9223372036854775808, 9223372036854775807},
	"uint8":  {0, 255},
	"uint16": {0, 65535},
	"uint32": {0, 4294967295},
	// uint64's native upper bound does not fit in int64; handled specially below.
}

func isIntegerDatatype(dt string) bool {
	switch dt {
	case "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		return true
	default:
		return false
	}
}

func isFloatDatatype(dt string) bool {
	return dt == "float" || dt == "double"
}

func isBooleanDatatype(dt string) bool {
	return dt == "boolean"
}

func isStringDatatype(dt string) bool {
	return dt == "string"
}

// coerceAndValidate parses raw (a JSON-decoded scalar: float64, string, or
// bool) into the representation stored on a Slot, enforcing the node's
// datatype, declared min/max and enum constraints. Arrays are validated
// element-wise, preserving order.
func coerceAndValidate(n *Node, raw any) (any, error) {
	if isArrayDatatype(n.Datatype) {
		items, ok := raw.([]any)
		if !ok {
			return nil, vsserrors.NewTypeMismatchError(fmt.Sprintf("%s expects an array value", n.Datatype))
		}
		elemType := elementDatatype(n.Datatype)
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerceScalar(elemType, n, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return coerceScalar(n.Datatype, n, raw)
}

func coerceScalar(datatype string, n *Node, raw any) (any, error) {
	switch {
	case isBooleanDatatype(datatype):
		return coerceBoolean(raw)
	case isIntegerDatatype(datatype):
		return coerceInteger(datatype, n, raw)
	case isFloatDatatype(datatype):
		return coerceFloat(n, raw)
	case isStringDatatype(datatype):
		return coerceString(n, raw)
	default:
		return nil, vsserrors.NewInvalidTreeError("unknown datatype: " + datatype)
	}
}

func coerceBoolean(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, vsserrors.NewTypeMismatchError("expected a boolean value")
}

func coerceInteger(datatype string, n *Node, raw any) (any, error) {
	i64, err := parseIntegerLiteral(raw)
	if err != nil {
		return nil, vsserrors.NewTypeMismatchError("expected a numeric value for " + datatype)
	}

	if datatype == "uint64" {
		u64 := utils.SafeInt64ToUint64(i64)
		if i64 < 0 {
			return nil, vsserrors.NewOutOfBoundsError("uint64 cannot hold a negative value")
		}
		if err := checkDeclaredBoundsUint64(n, u64); err != nil {
			return nil, err
		}
		return u64, nil
	}

	native, ok := integerNativeBounds[datatype]
	if ok {
		if i64 < native[0] || i64 > native[1] {
			return nil, vsserrors.NewOutOfBoundsError(fmt.Sprintf("%d is outside %s's native range [%d, %d]", i64, datatype, native[0], native[1]))
		}
	}
	if err := checkDeclaredBoundsInt64(n, i64); err != nil {
		return nil, err
	}
	return i64, nil
}

func parseIntegerLiteral(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported numeric literal type %T", raw)
	}
}

func checkDeclaredBoundsInt64(n *Node, v int64) error {
	if n.Min != nil && float64(v) < *n.Min {
		return vsserrors.NewOutOfBoundsError(fmt.Sprintf("%d is below declared minimum %v", v, *n.Min))
	}
	if n.Max != nil && float64(v) > *n.Max {
		return vsserrors.NewOutOfBoundsError(fmt.Sprintf("%d is above declared maximum %v", v, *n.Max))
	}
	return nil
}

func checkDeclaredBoundsUint64(n *Node, v uint64) error {
	if n.Min != nil && *n.Min >= 0 && v < uint64(*n.Min) {
		return vsserrors.NewOutOfBoundsError(fmt.Sprintf("%d is below declared minimum %v", v, *n.Min))
	}
	if n.Max != nil && *n.Max >= 0 && v > uint64(*n.Max) {
		return vsserrors.NewOutOfBoundsError(fmt.Sprintf("%d is above declared maximum %v", v, *n.Max))
	}
	return nil
}

func coerceFloat(n *Node, raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, vsserrors.NewTypeMismatchError("expected a numeric value")
		}
		f = parsed
	default:
		return nil, vsserrors.NewTypeMismatchError("expected a numeric value")
	}
	if n.Min != nil && f < *n.Min {
		return nil, vsserrors.NewOutOfBoundsError(fmt.Sprintf("%v is below declared minimum %v", f, *n.Min))
	}
	if n.Max != nil && f > *n.Max {
		return nil, vsserrors.NewOutOfBoundsError(fmt.Sprintf("%v is above declared maximum %v", f, *n.Max))
	}
	return f, nil
}

func coerceString(n *Node, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, vsserrors.NewTypeMismatchError("expected a string value")
	}
	if len(n.Enum) > 0 {
		for _, allowed := range n.Enum {
			if allowed == s {
				return s, nil
			}
		}
		return nil, vsserrors.NewInvalidValueError(fmt.Sprintf("%q is not a member of the declared enum", s))
	}
	return s, nil
}

// stringifyValue renders a stored value as a string, for as_string=true
// get requests. Without as_string, replies and notifications carry the
// stored native value.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = stringifyValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
