/*
Copyright 2024 Tupa Sync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	return bytes.NewBuffer(c), nil
}

// Call sends the request with a JSON content type and decodes the JSON
// response body into the provided structure.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	return CallWithTimeout(req, response, 0)
}

// CallWithTimeout behaves like Call but bounds the round trip. A zero timeout
// leaves the client's default in place. Vendor and ERP endpoints both get a
// per-request deadline from configuration.
func CallWithTimeout(req *http.Request, response interface{}, timeout time.Duration) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: timeout}

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return resp, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// BasicAuth generates a basic HTTP authentication string by encoding the
// provided username and password.
func BasicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}
