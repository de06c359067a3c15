package game

import (
	"strings"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// Validate 校验房间设置
func (s Settings) Validate(words WordSource) error {
	if s.MaxPlayers < MinPlayers || s.MaxPlayers > MaxPlayersLimit {
		return apperrors.Newf(apperrors.ErrInvalidSettings, "人数上限需在%d到%d之间", MinPlayers, MaxPlayersLimit)
	}
	if s.RoundTimeSeconds < MinRoundSeconds || s.RoundTimeSeconds > MaxRoundSeconds {
		return apperrors.Newf(apperrors.ErrInvalidSettings, "发言时限需在%d到%d秒之间", MinRoundSeconds, MaxRoundSeconds)
	}
	if s.MinorityCount < 0 || s.BlankCount < 0 {
		return apperrors.New(apperrors.ErrInvalidSettings, "身份人数不能为负")
	}
	if s.MinorityCount+s.BlankCount > s.MaxPlayers/2 {
		return apperrors.Newf(apperrors.ErrInvalidSettings, "卧底和白板合计不能超过%d", s.MaxPlayers/2)
	}

	if s.CustomWords != nil {
		return ValidateWordPair(*s.CustomWords)
	}
	if words == nil {
		return nil
	}
	if _, ok := words.Pack(s.WordPack); !ok {
		return apperrors.New(apperrors.ErrUnknownWordPack, s.WordPack)
	}
	return nil
}

// normalized 去掉自定义词语两端空白
func (s Settings) normalized() Settings {
	if s.CustomWords != nil {
		s.CustomWords = &WordPair{
			Majority: strings.TrimSpace(s.CustomWords.Majority),
			Minority: strings.TrimSpace(s.CustomWords.Minority),
		}
	}
	s.WordPack = strings.TrimSpace(s.WordPack)
	return s
}

// withDefaults 未填写的字段用默认值补齐
func (s Settings) withDefaults(d Settings) Settings {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = d.MaxPlayers
	}
	if s.RoundTimeSeconds == 0 {
		s.RoundTimeSeconds = d.RoundTimeSeconds
	}
	// 公开快照不含自定义词语，两者都没填时沿用原来的词语来源
	if s.WordPack == "" && s.CustomWords == nil {
		s.WordPack = d.WordPack
		if d.CustomWords != nil {
			w := *d.CustomWords
			s.CustomWords = &w
		}
	}
	return s
}
