package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(&buf, "debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("page", 2).Info("recognized")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "recognized", line["msg"])
	assert.EqualValues(t, 2, line["page"])
}

func TestNewWithOutput_BadLevel(t *testing.T) {
	l := NewWithOutput(&bytes.Buffer{}, "loud", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))

	ctx, id := WithRequestID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RequestID(ctx))

	l, hook := test.NewNullLogger()
	FromContext(ctx, l).Info("hello")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, id, hook.LastEntry().Data["request_id"])
}
