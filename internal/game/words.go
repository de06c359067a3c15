package game

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/wfunc/undercover-game/internal/errors"
)

// WordPack 词库
type WordPack struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Pairs []WordPair `json:"pairs"`
}

// WordSource 词库来源
type WordSource interface {
	Pack(id string) (*WordPack, bool)
	Packs() []*WordPack
}

// WordLibrary 内存词库，可在运行时注册
type WordLibrary struct {
	mu    sync.RWMutex
	packs map[string]*WordPack
}

// NewWordLibrary 创建词库
func NewWordLibrary(packs ...*WordPack) *WordLibrary {
	l := &WordLibrary{packs: make(map[string]*WordPack)}
	for _, p := range packs {
		l.Register(p)
	}
	return l
}

// DefaultWordLibrary 内置词库
func DefaultWordLibrary() *WordLibrary {
	return NewWordLibrary(
		&WordPack{ID: "classic", Name: "经典", Pairs: []WordPair{
			{"牛奶", "豆浆"}, {"眉毛", "胡须"}, {"饺子", "包子"}, {"玫瑰", "月季"},
			{"老师", "教授"}, {"蝴蝶", "蜜蜂"}, {"镜子", "玻璃"}, {"作家", "编剧"},
			{"警察", "保安"}, {"口红", "唇膏"}, {"同学", "同桌"}, {"橙子", "橘子"},
		}},
		&WordPack{ID: "food", Name: "美食", Pairs: []WordPair{
			{"火锅", "麻辣烫"}, {"可乐", "雪碧"}, {"汉堡", "三明治"}, {"寿司", "饭团"},
			{"蛋糕", "面包"}, {"酸奶", "奶酪"}, {"咖啡", "奶茶"}, {"烤鸭", "烧鹅"},
		}},
		&WordPack{ID: "animals", Name: "动物", Pairs: []WordPair{
			{"老虎", "狮子"}, {"兔子", "松鼠"}, {"海豚", "鲸鱼"}, {"鸽子", "麻雀"},
			{"青蛙", "蟾蜍"}, {"骆驼", "羊驼"}, {"狼", "狗"}, {"乌龟", "甲鱼"},
		}},
	)
}

// Register 注册或替换词库
func (l *WordLibrary) Register(p *WordPack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.packs[p.ID] = p
}

// Pack 按ID获取词库
func (l *WordLibrary) Pack(id string) (*WordPack, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.packs[id]
	return p, ok
}

// Packs 全部词库，按ID排序
func (l *WordLibrary) Packs() []*WordPack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	packs := make([]*WordPack, 0, len(l.packs))
	for _, p := range l.packs {
		packs = append(packs, p)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs
}

// ValidateWordPair 校验自定义词语
func ValidateWordPair(p WordPair) error {
	maj, min := strings.TrimSpace(p.Majority), strings.TrimSpace(p.Minority)
	if maj == "" || min == "" {
		return apperrors.New(apperrors.ErrInvalidWordPair, "词语不能为空")
	}
	if strings.EqualFold(maj, min) {
		return apperrors.New(apperrors.ErrInvalidWordPair, "两个词语不能相同")
	}
	return nil
}

// pickWordPair 为房间选一组本房间未用过的词；全部用过后重新开始
//
// 返回选中的词和更新后的已用列表。
func pickWordPair(src WordSource, settings Settings, used []string, rng *rand.Rand) (WordPair, []string, error) {
	if settings.CustomWords != nil {
		pair := WordPair{
			Majority: strings.TrimSpace(settings.CustomWords.Majority),
			Minority: strings.TrimSpace(settings.CustomWords.Minority),
		}
		return pair, used, nil
	}

	pack, ok := src.Pack(settings.WordPack)
	if !ok || len(pack.Pairs) == 0 {
		return WordPair{}, used, apperrors.New(apperrors.ErrUnknownWordPack, settings.WordPack)
	}

	var fresh []WordPair
	for _, p := range pack.Pairs {
		if !containsString(used, p.Key()) {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		// 本词库已全部用过，清掉该词库的记录
		var kept []string
		for _, k := range used {
			if !packHasKey(pack, k) {
				kept = append(kept, k)
			}
		}
		used = kept
		fresh = pack.Pairs
	}

	pair := fresh[rng.Intn(len(fresh))]
	// 随机交换平民词和卧底词
	if rng.Intn(2) == 1 {
		pair = WordPair{Majority: pair.Minority, Minority: pair.Majority}
	}
	return pair, append(used, pair.Key(), WordPair{Majority: pair.Minority, Minority: pair.Majority}.Key()), nil
}

func packHasKey(pack *WordPack, key string) bool {
	for _, p := range pack.Pairs {
		if p.Key() == key || (WordPair{Majority: p.Minority, Minority: p.Majority}).Key() == key {
			return true
		}
	}
	return false
}
