package serverutils

// ApiError is the typed error every layer below the controllers returns.
// The error handler middleware maps it to a status and a stable kind so
// internal error text never reaches the client unreviewed.
type ApiError struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ApiError) Error() string {
	return e.Kind + ": " + e.Message
}

func NewApiError(status int, kind, message string) *ApiError {
	return &ApiError{
		Status:  status,
		Kind:    kind,
		Message: message,
	}
}
