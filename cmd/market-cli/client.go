package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client talks to marketd over HTTP.
type client struct {
	base  string
	token string
	http  *http.Client
}

type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("marketd returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("marketd returned %d (%s): %s", e.Status, e.Kind, e.Message)
}

func (c *client) httpClient() *http.Client {
	if c.http != nil {
		return c.http
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// call sends body as JSON and returns the raw response body. Mutating calls
// require a bearer token.
func (c *client) call(method, path string, body interface{}, auth bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.token == "" {
			return nil, errors.New("a bearer token is required (--token or MARKETD_TOKEN)")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = string(bytes.TrimSpace(data))
		}
		return nil, &apiError{Status: resp.StatusCode, Kind: payload.Kind, Message: payload.Error}
	}
	return data, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
