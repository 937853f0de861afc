package process

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	vsserrors "vssbroker/internal/shared/errors"
	"vssbroker/internal/shared/utils/logutil"
)

// Known actions the protocol dispatches on.
const (
	ActionAuthorize      = "authorize"
	ActionGet            = "get"
	ActionSet            = "set"
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionGetMetaData    = "getMetaData"
	ActionUpdateMetaData = "updateMetaData"
	ActionUpdateVSSTree  = "updateVSSTree"
)

const maxSchemaErrorMessageLen = 200

// Per-action shape used for struct-tag validation with
// go-playground/validator, generalized from the teacher's gin
// `binding:"required"` request structs to this protocol's raw-JSON
// action messages.
type authorizeSchema struct {
	RequestID string `validate:"required"`
	Tokens    string `validate:"required"`
}

type pathOnlySchema struct {
	RequestID string `validate:"required"`
	Path      string `validate:"required"`
}

type setSchema struct {
	RequestID string `validate:"required"`
	Path      string `validate:"required"`
	Value     []byte `validate:"required"`
}

type unsubscribeSchema struct {
	RequestID      string `validate:"required"`
	SubscriptionID string `validate:"required"`
}

type updateVSSTreeSchema struct {
	RequestID string `validate:"required"`
	Value     []byte `validate:"required"`
}

// RequestValidator enforces the per-action required-field schema
// described in spec.md §4.4.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator builds a RequestValidator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New()}
}

// Validate checks req against the schema for req.Action. An unknown
// action or a failing field returns a SchemaError with a trimmed human
// message.
func (rv *RequestValidator) Validate(req Request) error {
	var err error
	switch req.Action {
	case ActionAuthorize:
		err = rv.v.Struct(authorizeSchema{RequestID: req.RequestID, Tokens: req.Tokens})
	case ActionGet, ActionGetMetaData, ActionSubscribe:
		err = rv.v.Struct(pathOnlySchema{RequestID: req.RequestID, Path: req.Path})
	case ActionSet, ActionUpdateMetaData:
		err = rv.v.Struct(setSchema{RequestID: req.RequestID, Path: req.Path, Value: []byte(req.Value)})
	case ActionUnsubscribe:
		err = rv.v.Struct(unsubscribeSchema{RequestID: req.RequestID, SubscriptionID: req.SubscriptionID})
	case ActionUpdateVSSTree:
		err = rv.v.Struct(updateVSSTreeSchema{RequestID: req.RequestID, Value: []byte(req.Value)})
	default:
		return vsserrors.NewSchemaError(fmt.Sprintf("unknown action %q", req.Action))
	}
	if err != nil {
		msg := logutil.TruncateForLog(describeValidationError(err), maxSchemaErrorMessageLen)
		return vsserrors.NewSchemaError(msg)
	}
	return nil
}

func describeValidationError(err error) string {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.StructField())
		}
	}
	if len(fields) == 0 {
		return err.Error()
	}
	return "missing or invalid field(s): " + strings.Join(fields, ", ")
}

// TryExtractRequestID best-effort decodes requestId from raw, even when
// the rest of the message fails full schema validation, so error
// envelopes can still echo the client's id.
func TryExtractRequestID(raw []byte) string {
	var partial struct {
		RequestID string `json:"requestId"`
	}
	_ = json.Unmarshal(raw, &partial)
	return partial.RequestID
}
