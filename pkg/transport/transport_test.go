package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_HeadersCaseInsensitive(t *testing.T) {
	req := &Request{}
	req.SetHeader("authorization", "Bearer t1")

	assert.Equal(t, "Bearer t1", req.Header("Authorization"))
	assert.Equal(t, "Bearer t1", req.Header("AUTHORIZATION"))

	// Setting under a different casing overwrites, not duplicates.
	req.SetHeader("AUTHORIZATION", "Bearer t2")
	assert.Equal(t, "Bearer t2", req.Header("authorization"))
	assert.Len(t, req.Headers, 1)
}

func TestRequest_Clone(t *testing.T) {
	req := &Request{
		Method:   "POST",
		Path:     "/v1/users",
		Body:     []byte(`{"name":"ada"}`),
		DedupKey: "/v1/users",
		Attempt:  2,
	}
	req.SetHeader("Authorization", "Bearer old")

	clone := req.Clone()
	assert.Equal(t, req.Method, clone.Method)
	assert.Equal(t, req.Path, clone.Path)
	assert.Equal(t, req.Body, clone.Body)
	assert.Equal(t, req.DedupKey, clone.DedupKey)
	assert.Zero(t, clone.Attempt, "clone resets the attempt counter")

	// Mutating the clone must not touch the original.
	clone.SetHeader("Authorization", "Bearer new")
	clone.Body[0] = 'X'
	assert.Equal(t, "Bearer old", req.Header("Authorization"))
	assert.Equal(t, byte('{'), req.Body[0])
}

func TestResponse_Header(t *testing.T) {
	resp := &Response{Headers: map[string][]string{"Retry-After": {"3"}}}
	assert.Equal(t, "3", resp.Header("retry-after"))
	assert.Equal(t, "", resp.Header("X-Missing"))

	var nilResp *Response
	assert.Equal(t, "", nilResp.Header("Retry-After"))
}
