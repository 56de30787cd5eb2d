package serverutils

// BaseResponse is the JSON envelope for every non-streaming endpoint.
// Kind carries the machine-readable error code on failures.
type BaseResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(kind, message string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Message: message,
		Kind:    kind,
	}
}
