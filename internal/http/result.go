package httpapi

// Result is the envelope of every JSON response.
// - code: ResultSuccess (2000) or ResultError (-1)
// - type: "success" | "error"
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Warn is a success whose message carries a caveat the client should show.
func Warn[T any](result T, message string) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "warning", Message: message, Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}
