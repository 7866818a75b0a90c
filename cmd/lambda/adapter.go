package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// proxyHandler serves API Gateway proxy events through an http.Handler
type proxyHandler struct {
	handler http.Handler
}

func (p *proxyHandler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := toHTTPRequest(ctx, request)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":{"code":"INVALID_INPUT","message":"Malformed request"}}`,
		}, nil
	}

	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)

	return toProxyResponse(rec), nil
}

// toHTTPRequest rebuilds the original HTTP request from the proxy event
func toHTTPRequest(ctx context.Context, request events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode body: %w", err)
		}
		body = decoded
	}

	query := url.Values{}
	for k, vs := range request.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range request.QueryStringParameters {
		if _, ok := query[k]; !ok {
			query.Set(k, v)
		}
	}

	target := request.Path
	if target == "" {
		target = "/"
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	method := request.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	for k, vs := range request.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range request.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	req.Host = req.Header.Get("Host")
	req.RemoteAddr = request.RequestContext.Identity.SourceIP
	if req.Header.Get("X-Forwarded-For") == "" && req.RemoteAddr != "" {
		req.Header.Set("X-Forwarded-For", req.RemoteAddr)
	}
	req.ContentLength = int64(len(body))

	return req, nil
}

// toProxyResponse converts a recorded response. Compressed or non-UTF-8 bodies are
// base64 encoded.
func toProxyResponse(rec *httptest.ResponseRecorder) events.APIGatewayProxyResponse {
	res := rec.Result()

	headers := make(map[string][]string, len(res.Header))
	for k, vs := range res.Header {
		headers[k] = vs
	}

	body := rec.Body.Bytes()
	resp := events.APIGatewayProxyResponse{
		StatusCode:        res.StatusCode,
		MultiValueHeaders: headers,
	}

	if res.Header.Get("Content-Encoding") != "" || !utf8.Valid(body) {
		resp.Body = base64.StdEncoding.EncodeToString(body)
		resp.IsBase64Encoded = true
	} else {
		resp.Body = string(body)
	}

	return resp
}
