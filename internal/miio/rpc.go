package miio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
)

// Caller issues one remote call and returns its decoded result.
// Implementations own request/response correlation.
type Caller interface {
	Call(ctx context.Context, method string, params any) (any, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, method string, params any) (any, error)

func (f CallerFunc) Call(ctx context.Context, method string, params any) (any, error) {
	return f(ctx, method, params)
}

// Request is the JSON envelope sent to the device.
type Request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Response is the JSON envelope returned by the device.
type Response struct {
	ID     int             `json:"id"`
	Result any             `json:"result"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// DeviceError is an error object reported by the device firmware.
type DeviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

var requestID atomic.Int64

func init() {
	requestID.Store(int64(rand.Intn(10000)))
}

// NextRequestID returns a request id in the 1..32767 range the firmware accepts.
func NextRequestID() int {
	return int(requestID.Add(1)%32767) + 1
}

// NewRequest builds a request envelope; nil params are sent as an empty array.
func NewRequest(method string, params any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{ID: NextRequestID(), Method: method, Params: params}
}

func EncodeRequest(req Request) ([]byte, error) {
	if req.Method == "" {
		return nil, errors.New("empty method")
	}
	return json.Marshal(req)
}

func DecodeResponse(payload []byte) (Response, error) {
	if len(payload) == 0 {
		return Response{}, errors.New("empty payload")
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Err returns the device-reported error, if any.
func (r Response) Err() error {
	if len(r.Error) == 0 || string(r.Error) == "null" {
		return nil
	}
	var devErr DeviceError
	if err := json.Unmarshal(r.Error, &devErr); err != nil {
		return fmt.Errorf("device error: %s", string(r.Error))
	}
	return devErr
}
