package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIsValid(t *testing.T) {
	s := Seed()
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultSentinel, s.Sentinel)
	assert.Equal(t, 5, s.QuestionLimit)
	assert.True(t, s.HasCategory("other"))
}

func TestParseFillsDefaults(t *testing.T) {
	doc := []byte(`
id: legal-intake
assistant_name: Lex
question_limit: 3
categories: [legal, other]
`)
	s, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, "legal-intake", s.ID)
	assert.Equal(t, "Lex", s.AssistantName)
	assert.Equal(t, 3, s.QuestionLimit)
	assert.Equal(t, []string{"legal", "other"}, s.Categories)
	assert.Equal(t, DefaultSentinel, s.Sentinel)
	assert.NotEmpty(t, s.Directive)
	assert.Equal(t, Seed().ApologyText, s.ApologyText)
}

func TestParseRejectsFallbackOutsideSet(t *testing.T) {
	_, err := Parse([]byte(`
categories: [tech, legal]
fallback_category: misc
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback category")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sentinel: \"<<HANDOFF>>\"\n"), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<<HANDOFF>>", s.Sentinel)
	assert.Equal(t, DefaultID, s.ID)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	custom := Seed()
	custom.ID = "plumbing"
	custom.Greeting = "Hi! Tell me about the leak."

	store := NewMemoryStore(custom, Seed(), Seed())

	assert.Equal(t, "plumbing", store.Active().ID)
	assert.Len(t, store.List(), 2, "duplicate ids are skipped")

	got, ok := store.FindByID(DefaultID)
	require.True(t, ok)
	assert.Equal(t, "Ava", got.AssistantName)

	_, ok = store.FindByID("missing")
	assert.False(t, ok)
}
