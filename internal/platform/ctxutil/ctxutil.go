package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

type requestDataKey struct{}

// RequestData carries the identity of the request, not of the cart: the
// cart id is resolved per call through the identity store, never trusted
// from the client.
type RequestData struct {
	CustomerID string
	DeviceID   string
	AuthToken  string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey{})
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

func CustomerID(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.CustomerID
	}
	return ""
}

func AuthToken(ctx context.Context) string {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.AuthToken
	}
	return ""
}
