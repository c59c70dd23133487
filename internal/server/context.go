package server

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
)
