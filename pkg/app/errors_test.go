package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	notFound := NewNotFound("deployment")
	integrity := NewIntegrity("duplicate domain %q", "x.example.com")
	inProgress := NewInProgress(42)

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(integrity))
	assert.True(t, IsIntegrity(integrity))
	assert.False(t, IsIntegrity(inProgress))
	assert.True(t, IsInProgress(inProgress))
	assert.False(t, IsInProgress(notFound))

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "deployment not found", NewNotFound("deployment").Error())
	assert.Equal(t, `duplicate domain "x"`, NewIntegrity("duplicate domain %q", "x").Error())
	assert.Contains(t, NewInProgress(42).Error(), "deployment 42")
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("creating deployment: %w", NewInProgress(7))
	assert.True(t, IsInProgress(wrapped))
}
