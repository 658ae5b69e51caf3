package i18n

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":         English,
		"en":       English,
		"en-GB":    English,
		"ar":       Arabic,
		"ar-EG":    Arabic,
		"ar-SA":    Arabic,
		"zh-CN":    English,
		"!invalid": English,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranslate(t *testing.T) {
	if err := Init(English); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	if got := TWithLang(English, "error.signal_not_found"); got != "Signal not found" {
		t.Errorf("英文翻译错误: %q", got)
	}
	if got := TWithLang(Arabic, "error.signal_not_found"); got != "التوصية غير موجودة" {
		t.Errorf("阿拉伯文翻译错误: %q", got)
	}

	got := TWithLang(English, "error.price_lookup_failed", map[string]interface{}{"Symbol": "PFE"})
	if got != "Could not fetch the current price for PFE" {
		t.Errorf("模板数据未生效: %q", got)
	}

	if got := T("no.such.key"); got != "no.such.key" {
		t.Errorf("未知 key 应原样返回, got %q", got)
	}
}

func TestIsRTL(t *testing.T) {
	if !IsRTL("ar") {
		t.Error("ar 应为 RTL")
	}
	if IsRTL("en-US") {
		t.Error("en-US 不应为 RTL")
	}
}

func TestMatchAcceptLanguage(t *testing.T) {
	SetSystemLanguage(English)

	tests := map[string]string{
		"":                          English,
		"ar-SA,ar;q=0.9,en;q=0.8":   Arabic,
		"fr-FR,ar;q=0.5":            Arabic,
		"en-US,en;q=0.9":            English,
		"de-DE":                     English,
		"garbage;;q=":               English,
	}
	for in, want := range tests {
		if got := MatchAcceptLanguage(in); got != want {
			t.Errorf("MatchAcceptLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
