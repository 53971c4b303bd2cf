package decoder

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHTTPRequestLine(t *testing.T) {
	raw := []byte("POST /v1/chat/completions HTTP/1.1\r\nHost: api.openai.com\r\n\r\n{}")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsRequest)
	assert.Equal(t, "POST", msg.Method)
	assert.Equal(t, "/v1/chat/completions", msg.Path)
	assert.Equal(t, "api.openai.com", msg.Host)
}

func TestParseHTTPResponseLine(t *testing.T) {
	raw := []byte("HTTP/1.1 429 Too Many Requests\r\nRetry-After: 3\r\n\r\n")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.False(t, msg.IsRequest)
	assert.Equal(t, 429, msg.StatusCode)
	assert.Equal(t, "3", msg.Headers.Get("retry-after"))
}

func TestHeaderLookupIsCaseInsensitive(t *testing.T) {
	raw := []byte("POST /x HTTP/1.1\r\nX-API-Key: sk-ant-test\r\nCONTENT-TYPE: application/json\r\n\r\n")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", msg.Headers.Get("x-api-key"))
	assert.Equal(t, "sk-ant-test", msg.Headers.Get("X-Api-Key"))
	assert.Equal(t, "application/json", msg.ContentType)
}

func TestParseHTTPIncompleteHeadersIsPartial(t *testing.T) {
	_, err := ParseHTTP([]byte("POST /x HTTP/1.1\r\nHost: incomplete"))
	assert.ErrorIs(t, err, ErrPartialMessage)
}

func TestDecodeChunkedBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsChunked)
	assert.Equal(t, "Wikipedia", string(msg.Body))
}

func TestDecodeChunkedIgnoresExtensions(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4;name=value\r\nWiki\r\n0\r\n\r\n")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.Equal(t, "Wiki", string(msg.Body))
}

func TestGzipBodyIsInflated(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"model":"gpt-4"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	raw := append([]byte("HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\n\r\n"), buf.Bytes()...)
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsGzipped)
	assert.False(t, msg.InflateFailed)
	assert.Equal(t, `{"model":"gpt-4"}`, string(msg.Body))
}

func TestGzipInflateFailureIsFlaggedNotFatal(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\n\r\nnot-gzip-at-all")
	msg, err := ParseHTTP(raw)
	require.NoError(t, err)
	assert.True(t, msg.InflateFailed)
}

func TestStreamingContentTypes(t *testing.T) {
	for _, ct := range []string{"text/event-stream", "application/x-ndjson", "application/stream+json"} {
		raw := []byte("HTTP/1.1 200 OK\r\nContent-Type: " + ct + "\r\n\r\n")
		msg, err := ParseHTTP(raw)
		require.NoError(t, err)
		assert.True(t, msg.IsStreaming, ct)
	}
}

func TestSplitSSE(t *testing.T) {
	body := []byte("data: {\"delta\":\"a\"}\n\ndata: {\"delta\":\"b\"}\n\ndata: [DONE]\n\n")
	frames := SplitSSE(body)
	require.Len(t, frames, 3)
	assert.Equal(t, `{"delta":"a"}`, frames[0].Data)
	assert.Equal(t, 0, frames[0].Sequence)
	assert.Equal(t, `{"delta":"b"}`, frames[1].Data)
	assert.Equal(t, "[DONE]", frames[2].Data)
}

func TestSplitSSEJoinsMultiLineData(t *testing.T) {
	body := []byte("data: line one\ndata: line two\n\n")
	frames := SplitSSE(body)
	require.Len(t, frames, 1)
	assert.Equal(t, "line one\nline two", frames[0].Data)
}
