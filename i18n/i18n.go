package i18n

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const (
	English = "en-US"
	Arabic  = "ar-SA"
)

// SupportedLanguages 支持的界面语言
var SupportedLanguages = []string{English, Arabic}

var (
	bundle         *i18n.Bundle
	mu             sync.RWMutex
	systemLanguage = English
	matcher        = language.NewMatcher([]language.Tag{language.AmericanEnglish, language.MustParse(Arabic)})
)

// Init 初始化 i18n，加载内嵌的翻译文件
func Init(lang string) error {
	mu.Lock()
	defer mu.Unlock()

	b := i18n.NewBundle(language.AmericanEnglish)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	for _, l := range SupportedLanguages {
		filename := fmt.Sprintf("locales/%s.yaml", l)
		if _, err := b.LoadMessageFileFS(localeFS, filename); err != nil {
			return fmt.Errorf("加载翻译文件 %s 失败: %w", filename, err)
		}
	}

	bundle = b
	systemLanguage = Normalize(lang)
	return nil
}

// Normalize 将任意语言标签映射为支持的语言，无法识别时返回英文
func Normalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return English
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return English
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return English
	}
	return SupportedLanguages[idx]
}

// MatchAcceptLanguage 解析 Accept-Language 头（含权重），返回最匹配的支持语言。
// 头为空或无法解析时返回系统默认语言。
func MatchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return GetSystemLanguage()
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return GetSystemLanguage()
	}
	return SupportedLanguages[idx]
}

// IsRTL 是否为从右到左书写的语言
func IsRTL(lang string) bool {
	return Normalize(lang) == Arabic
}

// GetLocalizer 获取指定语言的 Localizer，未初始化时返回 nil
func GetLocalizer(lang string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()

	if bundle == nil {
		return nil
	}
	if lang == "" {
		lang = systemLanguage
	}
	return i18n.NewLocalizer(bundle, lang, systemLanguage)
}

// T 翻译消息（使用系统默认语言）
func T(key string, data ...interface{}) string {
	return TWithLang(GetSystemLanguage(), key, data...)
}

// TWithLang 翻译消息（指定语言），翻译失败时返回 key
func TWithLang(lang string, key string, data ...interface{}) string {
	localizer := GetLocalizer(lang)
	if localizer == nil {
		return key
	}

	var templateData map[string]interface{}
	if len(data) > 0 {
		if m, ok := data[0].(map[string]interface{}); ok {
			templateData = m
		}
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		return key
	}
	return msg
}

// SetSystemLanguage 设置系统默认语言
func SetSystemLanguage(lang string) {
	mu.Lock()
	defer mu.Unlock()
	systemLanguage = Normalize(lang)
}

// GetSystemLanguage 获取系统默认语言
func GetSystemLanguage() string {
	mu.RLock()
	defer mu.RUnlock()
	return systemLanguage
}
