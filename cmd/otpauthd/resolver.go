package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookResolver resolves a verified principal by posting it to the
// application. A 200 with a user object is a success, a 404 is a
// decline, anything else is an error.
type webhookResolver struct {
	url        string
	authHeader string
	client     *http.Client
}

type resolverPayload struct {
	Principal string `json:"principal"`
}

type resolverResp struct {
	User interface{} `json:"user"`
	Info interface{} `json:"info"`
}

func newWebhookResolver(url, username, password string, timeout time.Duration) *webhookResolver {
	r := &webhookResolver{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
	if username != "" && password != "" {
		r.authHeader = fmt.Sprintf("Basic %s",
			base64.StdEncoding.EncodeToString([]byte(username+":"+password)))
	}
	return r
}

// Resolve posts the principal to the application endpoint and maps the
// response onto the three-way resolver contract.
func (r *webhookResolver) Resolve(ctx context.Context, principal string) (any, any, error) {
	b, err := json.Marshal(resolverPayload{Principal: principal})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if r.authHeader != "" {
		req.Header.Set("Authorization", r.authHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		var out resolverResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, nil, err
		}
		return out.User, out.Info, nil

	case http.StatusNotFound:
		var out resolverResp
		// The decline body is optional.
		json.NewDecoder(resp.Body).Decode(&out)
		return nil, out.Info, nil

	default:
		return nil, nil, fmt.Errorf("non-OK response from resolver: %d", resp.StatusCode)
	}
}

// staticResolver accepts every verified principal as-is. Meant for
// development setups without an application endpoint.
type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, principal string) (any, any, error) {
	return map[string]string{"principal": principal}, nil, nil
}
