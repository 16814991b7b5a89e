package service

import (
	"context"
	"fmt"
	"mime/multipart"

	"bff-proxy/internal/domain"
	"bff-proxy/internal/response"
	"bff-proxy/internal/upstream"
)

// ProxyRequest is an inbound request to pass through. Files switches the
// call to a multipart upload with Form as the extra fields.
type ProxyRequest struct {
	Method   string
	Endpoint string
	Body     any
	Form     map[string]any
	Files    map[string][]*multipart.FileHeader
}

// ProxyResponse is a successful upstream reply with credentials filtered out.
type ProxyResponse struct {
	Status int
	Body   any
}

type ProxyService struct {
	upstream Upstream
}

func NewProxyService(up Upstream) *ProxyService {
	return &ProxyService{upstream: up}
}

// Forward sends req upstream with the session's credentials. A 2xx reply is
// returned filtered; any other reply becomes an *UpstreamError carrying the
// upstream's code and message.
func (s *ProxyService) Forward(ctx context.Context, creds upstream.Credentials, req ProxyRequest) (*ProxyResponse, error) {
	var res *upstream.Result
	if len(req.Files) > 0 {
		res = s.upstream.Upload(ctx, creds, upstream.Call{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			Body:     req.Form,
		}, req.Files)
	} else {
		res = s.upstream.Forward(ctx, creds, upstream.Call{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			Body:     req.Body,
		})
	}

	if res.TransportFailed() {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, res.Err)
	}

	if !res.IsSuccess() {
		return nil, &UpstreamError{
			Status:  res.Status,
			Code:    stringField(res, "code", response.CodeAPIError),
			Message: stringField(res, "message", "API request failed"),
		}
	}

	return &ProxyResponse{Status: res.Status, Body: response.FilterSensitive(res.Body)}, nil
}
