package gqlerrors

import (
	"strings"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	ValidationFailedError = "GRAPHQL_VALIDATION_FAILED"
	UndefinedError = "UNDEFINED_ERROR"

	// ConfigurationErrorCode marks an error raised eagerly during
	// schema composition. Fatal for the StitchSchemas call.
	ConfigurationErrorCode = "STITCH_CONFIGURATION_ERROR"
	// DelegationTransportErrorCode marks a sub-executor invocation that
	// errored or returned a non-conforming value.
	DelegationTransportErrorCode = "STITCH_DELEGATION_TRANSPORT_ERROR"
	// PlannerDeadEndErrorCode marks a field for which no subschema
	// could be reached given the object's current provenance.
	PlannerDeadEndErrorCode = "STITCH_PLANNER_DEAD_END"
)

type Location struct {
	Line int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// Error represents a graphql error
type Error struct {
	Extensions map[string]interface{} `json:"extensions"`
	Message string `json:"message"`
	Locations []Location `json:"locations,omitempty"`
	Path []interface{} `json:"path,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError returns a graphql error with the given code and message
func NewError(code string, err error) *Error {
	return &Error{
		Message: err.Error(),
		Extensions: map[string]interface{}{
			"code": code,
		},
	}
}

// NewConfigurationError wraps a configuration failure. StitchSchemas
// returns one for every composition-time fault, fatal to the whole call;
// query execution also reports some faults with it inside the response's
// ErrorList (see handler.go and delegate.Delegate).
func NewConfigurationError(err error) *Error {
	return NewError(ConfigurationErrorCode, err)
}

// NewLocatedError attaches path to err, relocating an UnpathedError or wrapping a transport failure at the
// point it is read from a parent object.
func NewLocatedError(err error, path []interface{}) *Error {
	e := singleError(err)
	cp := *e
	cp.Path = path
	return &cp
}

// NewUnpathedError marks err as having no path yet;
// it is stored on an ExternalObject's unpathedErrors slice until a field
// read relocates it via NewLocatedError.
func NewUnpathedError(err error) *Error {
	e := singleError(err)
	cp := *e
	cp.Path = nil
	return &cp
}

// NewDelegationTransportError wraps an executor-level failure at the
// delegation path.
func NewDelegationTransportError(subschemaName string, err error, path []interface{}) *Error {
	return &Error{
		Message: err.Error(),
		Path: path,
		Extensions: map[string]interface{}{
			"code": DelegationTransportErrorCode,
			"subschema": subschemaName,
		},
	}
}

// NewPlannerDeadEndError reports that fieldName could not be routed to any
// subschema given the object's current provenance.
func NewPlannerDeadEndError(fieldName string, path []interface{}) *Error {
	return &Error{
		Message: "no subschema could resolve field " + fieldName + " for the current merged object",
		Path: path,
		Extensions: map[string]interface{}{
			"code": PlannerDeadEndErrorCode,
		},
	}
}

func singleError(err error) *Error {
	list := FormatError(err)
	if len(list) == 0 {
		return &Error{Message: "unknown error"}
	}
	return list[0]
}

// ErrorList represents a list of errors
type ErrorList []*Error

// ExtendErrorList adds provided err as *Error
func ExtendErrorList(errs ErrorList, err error) ErrorList {
	return append(errs, FormatError(err)...)
}

// Error returns a string representation of each error
func (list ErrorList) Error() string {
	acc := make([]string, len(list))

	for i, err := range list {
		acc[i] = err.Error()
	}

	return strings.Join(acc, ". ")
}

func FormatError(err error) ErrorList {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
		case ErrorList:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
		case *Error:
		return ErrorList{e}
		case *gqlerror.Error:
		var locations []Location
		for _, loc := range e.Locations {
			locations = append(locations, Location(loc))
		}
		var path []string
		if e.Path.String() != "" {
			path = strings.Split(e.Path.String(), ".")
		}
		ext := e.Extensions
		if len(ext) == 0 {
			ext = map[string]interface{}{"code": UndefinedError}
		}
		return ErrorList{&Error{
				Extensions: ext,
				Message: e.Message,
				Locations: locations,
				Path: lo.Map(path, func(el string, i int) interface{} { return el }),
		}}
		case gqlerror.List:
		var list ErrorList
		for _, innerErr := range e {
			list = append(list, FormatError(innerErr)...)
		}
		return list
		default:
		return ErrorList{
			NewError(UndefinedError, err),
		}
	}
}
