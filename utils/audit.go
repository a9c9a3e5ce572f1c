package utils

import (
	"encoding/json"
	"time"

	"freightlink/types"

	"github.com/gofiber/fiber/v2"
)

// CreateAuditLogEntry builds a request audit entry from a completed request
// context. All data is deep copied; fasthttp recycles the underlying buffers
// once the handler returns.
func CreateAuditLogEntry(c *fiber.Ctx) types.LogEntry {
	method := string([]byte(c.Method()))
	url := string([]byte(c.OriginalURL()))
	requestBody := redactCode(string(append([]byte(nil), c.Body()...)))
	responseBody := string(append([]byte(nil), c.Response().Body()...))

	requestHeaders := make([]byte, len(c.Request().Header.Header()))
	copy(requestHeaders, c.Request().Header.Header())

	responseHeaders := make([]byte, len(c.Response().Header.Header()))
	copy(responseHeaders, c.Response().Header.Header())

	return types.LogEntry{
		Method:          method,
		URL:             url,
		RequestBody:     requestBody,
		ResponseBody:    responseBody,
		RequestHeaders:  string(requestHeaders),
		ResponseHeaders: string(responseHeaders),
		StatusCode:      c.Response().StatusCode(),
		CreatedAt:       time.Now(),
	}
}

// redactCode masks the one-time code in a JSON request body before it is
// persisted to the audit table. Non-JSON bodies pass through unchanged.
func redactCode(body string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return body
	}

	if _, ok := payload["code"]; !ok {
		return body
	}

	payload["code"] = "******"
	redacted, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return string(redacted)
}
