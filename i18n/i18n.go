// Package i18n loads the storefront's message catalogs and negotiates the
// response language.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLocale = "en"
	contextKey    = "Locale"
	cookieName    = "lang"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	catalogs = mustLoad()
	tags     = []language.Tag{language.English, language.Persian}
	matcher  = language.NewMatcher(tags)
)

func mustLoad() map[string]map[string]string {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		panic(err)
	}
	out := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		raw, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			panic(err)
		}
		var messages map[string]string
		if err := yaml.Unmarshal(raw, &messages); err != nil {
			panic(fmt.Sprintf("i18n: parse %s: %v", entry.Name(), err))
		}
		out[strings.TrimSuffix(entry.Name(), ".yaml")] = messages
	}
	return out
}

// Supported lists the locales that have a catalog.
func Supported() []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// T translates key into locale, falling back to English and then to the key.
// Extra args are applied with fmt.Sprintf.
func T(locale, key string, args ...any) string {
	msg, ok := catalogs[locale][key]
	if !ok {
		msg, ok = catalogs[DefaultLocale][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Match picks the best supported locale for the given preferences, which may
// be plain codes or an Accept-Language header value.
func Match(preferences ...string) string {
	for _, pref := range preferences {
		if pref == "" {
			continue
		}
		desired, _, err := language.ParseAcceptLanguage(pref)
		if err != nil || len(desired) == 0 {
			continue
		}
		_, index, confidence := matcher.Match(desired...)
		if confidence == language.No {
			continue
		}
		base, _ := tags[index].Base()
		return base.String()
	}
	return DefaultLocale
}

// Middleware resolves the locale from ?lang=, the lang cookie and
// Accept-Language, in that order, and stores it in the gin context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(cookieName)
		locale := Match(c.Query("lang"), cookie, c.GetHeader("Accept-Language"))
		c.Set(contextKey, locale)
		c.Header("Content-Language", locale)
		c.Next()
	}
}

// Locale returns the locale chosen by Middleware.
func Locale(c *gin.Context) string {
	if locale := c.GetString(contextKey); locale != "" {
		return locale
	}
	return DefaultLocale
}

// Tr translates key for the current request.
func Tr(c *gin.Context, key string, args ...any) string {
	return T(Locale(c), key, args...)
}

// Tag is the language tag of a supported locale.
func Tag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}
