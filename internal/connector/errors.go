package connector

import "strings"

// ErrorKind classifies a driver error the agent can recover from.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorUnknownObject
	ErrorUnknownColumn
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorUnknownObject:
		return "unknown_object"
	case ErrorUnknownColumn:
		return "unknown_column"
	default:
		return "other"
	}
}

// ClassifyMessage matches err's text against driver specific markers. It is
// the fallback when a driver error type carries no usable code.
func ClassifyMessage(err error, objectMarkers, columnMarkers []string) ErrorKind {
	if err == nil {
		return ErrorOther
	}
	msg := strings.ToLower(err.Error())
	for _, m := range columnMarkers {
		if strings.Contains(msg, strings.ToLower(m)) {
			return ErrorUnknownColumn
		}
	}
	for _, m := range objectMarkers {
		if strings.Contains(msg, strings.ToLower(m)) {
			return ErrorUnknownObject
		}
	}
	return ErrorOther
}
