package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a request the node answered with a non-success status.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Kind    string // Kind is the error kind, e.g. "invalid_flag"
	Message string // Message is the human-readable error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d, kind %s)", e.Message, e.Status, e.Kind)
}

// submitTx sends transaction bytes via POST /tx and decodes the result.
func (c *Client) submitTx(txBytes []byte, result any) error {
	resp, err := c.http.Post(c.baseURL+"/tx", "application/octet-stream", bytes.NewReader(txBytes))
	if err != nil {
		return fmt.Errorf("post tx:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(path string, result any) error {
	url := c.baseURL + path

	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// decodeAPIError builds an APIError from an error response body.
func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		body.Error = http.StatusText(resp.StatusCode)
	}

	return &APIError{Status: resp.StatusCode, Kind: body.Kind, Message: body.Error}
}
