// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAttachesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "axtl-test", Version: "v1.2.3"})

	logger := WithComponent("engine")
	logger.Info().Str("event", "test.fired").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "axtl-test", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "test.fired", entry["event"])
}

func TestSetLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "axtl-test"})

	SetLevel("warn")
	logger := Base()
	logger.Info().Msg("filtered")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("visible")
	assert.NotZero(t, buf.Len())

	// Unknown levels are ignored rather than failing.
	SetLevel("chatty")
	buf.Reset()
	logger = Base()
	logger.Warn().Msg("still visible")
	assert.NotZero(t, buf.Len())
}

func TestSessionIDContext(t *testing.T) {
	assert.Empty(t, SessionIDFromContext(context.Background()))
	assert.Empty(t, SessionIDFromContext(nil)) //nolint:staticcheck

	ctx := ContextWithSessionID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", SessionIDFromContext(ctx))

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "axtl-test"})
	logger := WithComponentFromContext(ctx, "bridge")
	logger.Info().Msg("tagged")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry["session_id"])
	assert.Equal(t, "bridge", entry["component"])
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "axtl-test"})
	logger := WithComponentFromContext(ctx, "api")
	logger.Info().Msg("tagged")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
}
