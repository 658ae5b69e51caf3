package web

import (
	"github.com/gin-gonic/gin"

	psi18n "pharmasignals/i18n"
)

// I18nMiddleware 解析请求语言（?lang= 优先，其次 Accept-Language）并设置到上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var lang string
		if q := c.Query("lang"); q != "" {
			lang = psi18n.Normalize(q)
		} else {
			lang = psi18n.MatchAcceptLanguage(c.GetHeader("Accept-Language"))
		}

		c.Set("language", lang)
		c.Header("Content-Language", lang)

		c.Next()
	}
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, exists := c.Get("language"); exists {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return psi18n.GetSystemLanguage()
}

// T 翻译消息（从上下文获取语言）
func T(c *gin.Context, key string, data ...interface{}) string {
	return psi18n.TWithLang(GetLanguage(c), key, data...)
}
