package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorContext_RoundTrip(t *testing.T) {
	ctx := WithActorContext(context.Background(), ActorContext{UserID: "u1", Role: "analyst"})
	actor, ok := GetActorContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", actor.UserID)
	assert.Equal(t, "analyst", actor.Role)
}

func TestGetActorContext_Absent(t *testing.T) {
	_, ok := GetActorContext(context.Background())
	assert.False(t, ok)
}

func TestActorOrAnonymous(t *testing.T) {
	assert.Equal(t, "anonymous", ActorOrAnonymous(context.Background()))

	ctx := WithActorContext(context.Background(), ActorContext{UserID: "u2"})
	assert.Equal(t, "u2", ActorOrAnonymous(ctx))
}
