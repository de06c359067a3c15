package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

func TestWordLibrary(t *testing.T) {
	lib := DefaultWordLibrary()

	packs := lib.Packs()
	require.Len(t, packs, 3)
	assert.Equal(t, "animals", packs[0].ID)
	assert.Equal(t, "classic", packs[1].ID)

	for _, p := range packs {
		for _, pair := range p.Pairs {
			assert.NoError(t, ValidateWordPair(pair), "%s: %v", p.ID, pair)
		}
	}

	lib.Register(&WordPack{ID: "custom", Name: "自定义", Pairs: []WordPair{{"猫", "狗"}}})
	pack, ok := lib.Pack("custom")
	require.True(t, ok)
	assert.Equal(t, "自定义", pack.Name)

	_, ok = lib.Pack("missing")
	assert.False(t, ok)
}

func TestValidateWordPair(t *testing.T) {
	assert.NoError(t, ValidateWordPair(WordPair{Majority: "苹果", Minority: "梨"}))

	for _, p := range []WordPair{
		{Majority: "", Minority: "梨"},
		{Majority: "苹果", Minority: "  "},
		{Majority: "Cat", Minority: " cat "},
	} {
		assert.Equal(t, apperrors.ErrInvalidWordPair, apperrors.GetCode(ValidateWordPair(p)), "%v", p)
	}
}

func TestPickWordPair_NoRepeatUntilExhausted(t *testing.T) {
	lib := NewWordLibrary(&WordPack{ID: "tiny", Pairs: []WordPair{{"A", "B"}, {"C", "D"}, {"E", "F"}}})
	rng := rand.New(rand.NewSource(2))
	settings := Settings{WordPack: "tiny"}

	var used []string
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		pair, next, err := pickWordPair(lib, settings, used, rng)
		require.NoError(t, err)
		key := pair.Key()
		if pair.Majority > pair.Minority {
			key = WordPair{Majority: pair.Minority, Minority: pair.Majority}.Key()
		}
		assert.False(t, seen[key], "词语对重复: %v", pair)
		seen[key] = true
		used = next
	}
	assert.Len(t, used, 6)

	// 全部用过后重新开始
	_, used, err := pickWordPair(lib, settings, used, rng)
	require.NoError(t, err)
	assert.Len(t, used, 2)
}

func TestPickWordPair_CustomAndUnknown(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	pair, used, err := pickWordPair(DefaultWordLibrary(), Settings{CustomWords: &WordPair{Majority: " 苹果 ", Minority: "梨"}}, []string{"x"}, rng)
	require.NoError(t, err)
	assert.Equal(t, WordPair{Majority: "苹果", Minority: "梨"}, pair)
	assert.Equal(t, []string{"x"}, used)

	_, _, err = pickWordPair(DefaultWordLibrary(), Settings{WordPack: "missing"}, nil, rng)
	assert.Equal(t, apperrors.ErrUnknownWordPack, apperrors.GetCode(err))
}

func TestSettingsValidate(t *testing.T) {
	words := DefaultWordLibrary()
	valid := Settings{MaxPlayers: 8, RoundTimeSeconds: 60, WordPack: "classic", MinorityCount: 2, BlankCount: 1}
	require.NoError(t, valid.Validate(words))

	testCases := []struct {
		name   string
		mutate func(s *Settings)
		code   apperrors.ErrorCode
	}{
		{"人数过少", func(s *Settings) { s.MaxPlayers = 2 }, apperrors.ErrInvalidSettings},
		{"人数过多", func(s *Settings) { s.MaxPlayers = 21 }, apperrors.ErrInvalidSettings},
		{"时限过短", func(s *Settings) { s.RoundTimeSeconds = 9 }, apperrors.ErrInvalidSettings},
		{"时限过长", func(s *Settings) { s.RoundTimeSeconds = 301 }, apperrors.ErrInvalidSettings},
		{"身份人数为负", func(s *Settings) { s.BlankCount = -1 }, apperrors.ErrInvalidSettings},
		{"特殊身份过多", func(s *Settings) { s.MinorityCount = 4 }, apperrors.ErrInvalidSettings},
		{"未知词库", func(s *Settings) { s.WordPack = "missing" }, apperrors.ErrUnknownWordPack},
		{"自定义词相同", func(s *Settings) { s.CustomWords = &WordPair{Majority: "猫", Minority: "猫"} }, apperrors.ErrInvalidWordPair},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			assert.Equal(t, tc.code, apperrors.GetCode(s.Validate(words)))
		})
	}

	// 自定义词语优先于词库
	custom := valid
	custom.WordPack = "missing"
	custom.CustomWords = &WordPair{Majority: "猫", Minority: "狗"}
	assert.NoError(t, custom.Validate(words))
}

func TestSettingsDefaults(t *testing.T) {
	d := DefaultRules().Defaults

	s := Settings{WordPack: "  food "}.normalized().withDefaults(d)
	assert.Equal(t, d.MaxPlayers, s.MaxPlayers)
	assert.Equal(t, d.RoundTimeSeconds, s.RoundTimeSeconds)
	assert.Equal(t, "food", s.WordPack)

	s = Settings{CustomWords: &WordPair{Majority: " 猫 ", Minority: "狗 "}}.normalized().withDefaults(d)
	assert.Empty(t, s.WordPack)
	assert.Equal(t, WordPair{Majority: "猫", Minority: "狗"}, *s.CustomWords)
}
