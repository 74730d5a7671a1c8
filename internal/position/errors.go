package position

import "encoding/json"

// ErrorCode is the result of a public registry operation. The numeric values
// are part of the native bridge contract and must not change. Position and
// satellite requests use partly overlapping values, so a code is only
// meaningful together with the operation that produced it.
type ErrorCode int

const (
	AccessError        ErrorCode = 0
	ClosedError        ErrorCode = 1
	UnknownSourceError ErrorCode = 2
	NoError            ErrorCode = 3

	SatelliteNoError            ErrorCode = 2
	SatelliteUnknownSourceError ErrorCode = -1
)

// Name returns the taxonomy name of the code as produced by a position
// (satellite == false) or satellite request.
func (c ErrorCode) Name(satellite bool) string {
	switch c {
	case AccessError:
		return "access_error"
	case ClosedError:
		return "closed_error"
	}
	if satellite {
		switch c {
		case SatelliteNoError:
			return "no_error"
		case SatelliteUnknownSourceError:
			return "unknown_source_error"
		}
		return "invalid"
	}
	switch c {
	case UnknownSourceError:
		return "unknown_source_error"
	case NoError:
		return "no_error"
	}
	return "invalid"
}

// Result pairs a code with the request family that produced it so it can be
// rendered unambiguously.
type Result struct {
	Code      ErrorCode
	Satellite bool
}

func (r Result) String() string {
	return r.Code.Name(r.Satellite)
}

// OK reports whether the request succeeded outright.
func (r Result) OK() bool {
	if r.Satellite {
		return r.Code == SatelliteNoError
	}
	return r.Code == NoError
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code ErrorCode `json:"code"`
		Name string    `json:"name"`
	}{r.Code, r.String()})
}
