package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithIDAndFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FromContext(ctx))

	withID := WithID(ctx, "abc-123")
	assert.Equal(t, "abc-123", FromContext(withID))

	assert.Equal(t, ctx, WithID(ctx, ""), "empty id should not wrap the context")
}
