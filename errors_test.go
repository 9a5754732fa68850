package provgraph

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSentinelErrors verifies that all sentinel errors are defined correctly.
func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "ErrInvalidConfig", err: ErrInvalidConfig, want: "invalid configuration"},
		{name: "ErrInvalidItem", err: ErrInvalidItem, want: "invalid graph item"},
		{name: "ErrCopyFailed", err: ErrCopyFailed, want: "copy failed"},
		{name: "ErrQueueUnavailable", err: ErrQueueUnavailable, want: "queue unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "basic error",
			err:  &Error{Op: "DropKeys.Init", Kind: KindConfiguration, Err: ErrInvalidConfig},
			want: "provgraph: DropKeys.Init (configuration): invalid configuration",
		},
		{
			name: "nil underlying error",
			err:  &Error{Op: "MergeVertex.Transform", Kind: KindInternal},
			want: "provgraph: MergeVertex.Transform: internal",
		},
		{
			name: "with context",
			err: &Error{
				Op:      "DropKeys.Init",
				Kind:    KindConfiguration,
				Err:     ErrInvalidConfig,
				Context: map[string]any{"key": "type"},
			},
			want: "provgraph: DropKeys.Init (configuration): invalid configuration [context: map[key:type]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := NewConfigError("DropKeys.Init", "cannot remove 'type' key")

	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, &Error{Kind: KindConfiguration}))
	assert.True(t, errors.Is(err, &Error{Op: "DropKeys.Init", Kind: KindConfiguration}))
	assert.False(t, errors.Is(err, &Error{Op: "MergeVertex.Init", Kind: KindConfiguration}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
	assert.False(t, errors.Is(err, ErrCopyFailed))
	assert.Contains(t, err.Error(), "cannot remove 'type' key")
}

func TestNewCopyErrorKeepsCause(t *testing.T) {
	cause := errors.New("endpoint clone failed")
	err := NewCopyError("DropKeys.PutEdge", cause)

	assert.True(t, errors.Is(err, ErrCopyFailed))
	assert.True(t, errors.Is(err, cause))

	var pgErr *Error
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, KindCopy, pgErr.Kind)
}

func TestErrorWithContext(t *testing.T) {
	base := &Error{Op: "op", Kind: KindValidation, Err: ErrInvalidItem, Context: map[string]any{"a": 1}}
	withCtx := base.WithContext(map[string]any{"b": 2})

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, withCtx.Context)
	assert.Equal(t, map[string]any{"a": 1}, base.Context, "original must not be modified")
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("boom") }

func TestCloseWithLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	CloseWithLog(failingCloser{}, logger, "redis client")
	assert.Contains(t, buf.String(), "failed to close resource")
	assert.Contains(t, buf.String(), "redis client")

	assert.NotPanics(t, func() { CloseWithLog(nil, logger, "nothing") })
}
