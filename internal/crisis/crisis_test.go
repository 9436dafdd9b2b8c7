package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMentions(t *testing.T) {
	assert.True(t, Mentions("Sometimes I want to die"))
	assert.True(t, Mentions("I can’t go on like this"))
	assert.True(t, Mentions("thinking about SELF-HARM again"))
	assert.False(t, Mentions("my heart is racing and I feel dizzy"))
}

func TestTagged(t *testing.T) {
	assert.True(t, Tagged([]string{"work", " Hopeless "}))
	assert.False(t, Tagged([]string{"panic", "tired"}))
	assert.NotEmpty(t, Resources())
}
