package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlternation(t *testing.T) {
	s := New()
	require.NoError(t, s.AppendUser("q1"))
	require.NoError(t, s.AppendAssistant("a1"))
	require.NoError(t, s.AppendUser("q2"))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}, s.Turns())
}

func TestRejectsLeadingAssistant(t *testing.T) {
	s := New()
	err := s.AppendAssistant("hello")
	assert.ErrorIs(t, err, ErrUnexpectedRole)
	assert.Equal(t, 0, s.Len())
}

func TestRejectsConsecutiveSameRole(t *testing.T) {
	s := New()
	require.NoError(t, s.AppendUser("q1"))
	assert.ErrorIs(t, s.AppendUser("q1 again"), ErrUnexpectedRole)

	require.NoError(t, s.AppendAssistant("a1"))
	assert.ErrorIs(t, s.AppendAssistant("a1 again"), ErrUnexpectedRole)
	assert.Equal(t, 2, s.Len())
}

func TestTurnsIsACopy(t *testing.T) {
	s := New()
	require.NoError(t, s.AppendUser("q1"))
	turns := s.Turns()
	turns[0].Content = "changed"
	assert.Equal(t, "q1", s.Turns()[0].Content)
}

func TestDropPendingUser(t *testing.T) {
	s := New()
	assert.False(t, s.DropPendingUser())

	require.NoError(t, s.AppendUser("q1"))
	require.NoError(t, s.AppendAssistant("a1"))
	assert.False(t, s.DropPendingUser())

	require.NoError(t, s.AppendUser("q2"))
	assert.True(t, s.DropPendingUser())
	assert.Equal(t, 2, s.Len())
	require.NoError(t, s.AppendUser("q2 retry"))
}
