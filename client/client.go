// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/juju/errors"
)

// Client calls the prediction server.
type Client struct {
	entryPoint string
	httpClient http.Client
}

func NewClient(entryPoint string) *Client {
	return &Client{entryPoint: strings.TrimSuffix(entryPoint, "/")}
}

// Predict requests the score of a user for a product. Unseen identifiers
// rejected by the server fail with errors.NotFound, invalid identifiers with
// errors.NotValid.
func (c *Client) Predict(ctx context.Context, userId, productId string) (float32, error) {
	var resp PredictResponse
	if err := c.request(ctx, http.MethodPost, "/predict", PredictRequest{UserId: userId, ProductId: productId}, &resp); err != nil {
		return 0, err
	}
	return resp.Score, nil
}

// Health returns whether the server has loaded a model.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	err := c.request(ctx, http.MethodGet, "/api/health", nil, &health)
	if err != nil && !errors.Is(err, errors.NotProvisioned) {
		return nil, err
	}
	return &health, nil
}

func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Trace(err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.entryPoint+path, reader)
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Trace(err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		// health reports still carry a body
		if result != nil {
			_ = json.Unmarshal(content, result)
		}
		return errors.NewNotProvisioned(ErrorMessage(content), "service unavailable")
	case http.StatusBadRequest:
		return errors.NewNotValid(ErrorMessage(content), "bad request")
	case http.StatusNotFound:
		return errors.NewNotFound(ErrorMessage(content), "not found")
	default:
		return errors.Annotatef(ErrorMessage(content), "unexpected status %d", resp.StatusCode)
	}
	if result != nil {
		if err = json.Unmarshal(content, result); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
